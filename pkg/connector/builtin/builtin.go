// Package builtin wires the compiled-in backend list into a ConnectorManager.
// Registration is a startup-only operation: callers populate the manager
// fully before exposing it to query traffic.
package builtin

import (
	"github.com/petreldb/petrel/pkg/connector"
	"github.com/petreldb/petrel/pkg/connector/binlog"
	"github.com/petreldb/petrel/pkg/connector/file"
	"github.com/petreldb/petrel/pkg/connector/jdbc"
	"github.com/petreldb/petrel/pkg/connector/lake"
	"github.com/petreldb/petrel/pkg/connector/mysql"
)

// Options carries the process-level collaborators some connectors need.
type Options struct {
	// LakeStore is the tablet store behind the lake connector; nil skips it.
	LakeStore *lake.Store
	// BinlogReaderFactory opens changelog readers; nil skips the binlog
	// connector.
	BinlogReaderFactory binlog.ReaderFactory
}

// RegisterAll populates the manager with every built-in connector.
func RegisterAll(m *connector.ConnectorManager, opts Options) error {
	if err := m.Put(connector.NameJDBC, jdbc.NewConnector()); err != nil {
		return err
	}
	if err := m.Put(connector.NameMySQL, mysql.NewConnector()); err != nil {
		return err
	}
	if err := m.Put(connector.NameFile, file.NewConnector()); err != nil {
		return err
	}
	if opts.LakeStore != nil {
		if err := m.Put(connector.NameLake, lake.NewConnector(opts.LakeStore)); err != nil {
			return err
		}
	}
	if opts.BinlogReaderFactory != nil {
		if err := m.Put(connector.NameBinlog, binlog.NewConnector(opts.BinlogReaderFactory)); err != nil {
			return err
		}
	}
	return nil
}
