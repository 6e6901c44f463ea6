package binlog

import (
	"context"
	"fmt"
	"io"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/go-mysql-org/go-mysql/replication"

	"github.com/petreldb/petrel/pkg/errors"
	"github.com/petreldb/petrel/pkg/plan"
)

// MySQLChangelogConfig configures a reader over a MySQL binlog stream.
type MySQLChangelogConfig struct {
	Host     string
	Port     uint16
	User     string
	Password string
	ServerID uint32
	// Columns names the positional row values of binlog events, in table
	// column order; binlog row events carry no column names.
	Columns []string
}

// mysqlChangelog adapts a MySQL binlog stream to the ChangelogReader
// contract. The table version maps to the binlog file ordinal and the
// changelog id to the offset within it; an epoch ends at a transaction
// commit (XID) or a file rotation.
type mysqlChangelog struct {
	cfg      MySQLChangelogConfig
	syncer   *replication.BinlogSyncer
	streamer *replication.BinlogStreamer
	version  int64
}

// NewMySQLChangelogReader creates a reader over a MySQL server's binlog.
func NewMySQLChangelogReader(cfg MySQLChangelogConfig) ChangelogReader {
	return &mysqlChangelog{cfg: cfg}
}

// NewMySQLReaderFactory returns the production ReaderFactory dialing MySQL
// replication. Column names for positional row events come from the scan's
// tuple layout when the config leaves them unset.
func NewMySQLReaderFactory(cfg MySQLChangelogConfig) ReaderFactory {
	return func(node *plan.PlanNode, spec ScanRangeSpec) (ChangelogReader, error) {
		c := cfg
		if len(c.Columns) == 0 && node.TupleDesc != nil {
			c.Columns = make([]string, len(node.TupleDesc.Slots))
			for i, slot := range node.TupleDesc.Slots {
				c.Columns[i] = slot.Name
			}
		}
		return NewMySQLChangelogReader(c), nil
	}
}

func (r *mysqlChangelog) SeekTo(tableVersion, changelogID int64) error {
	if r.syncer != nil {
		r.syncer.Close()
		r.syncer = nil
		r.streamer = nil
	}
	r.syncer = replication.NewBinlogSyncer(replication.BinlogSyncerConfig{
		ServerID: r.cfg.ServerID,
		Flavor:   "mysql",
		Host:     r.cfg.Host,
		Port:     r.cfg.Port,
		User:     r.cfg.User,
		Password: r.cfg.Password,
	})
	pos := gomysql.Position{
		Name: fmt.Sprintf("mysql-bin.%06d", tableVersion),
		Pos:  uint32(changelogID),
	}
	streamer, err := r.syncer.StartSync(pos)
	if err != nil {
		r.syncer.Close()
		r.syncer = nil
		return errors.Wrapf(err, errors.ErrorTypeStreamEpoch,
			"start binlog sync at %s:%d", pos.Name, pos.Pos)
	}
	r.streamer = streamer
	r.version = tableVersion
	return nil
}

func (r *mysqlChangelog) Next(ctx context.Context) (*Event, error) {
	if r.streamer == nil {
		return nil, io.EOF
	}
	for {
		ev, err := r.streamer.GetEvent(ctx)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeStreamEpoch, "read binlog event")
		}
		switch e := ev.Event.(type) {
		case *replication.RowsEvent:
			op, ok := rowsOp(ev.Header.EventType)
			if !ok || len(e.Rows) == 0 {
				continue
			}
			return &Event{
				TableVersion: r.version,
				ChangelogID:  int64(ev.Header.LogPos),
				Op:           op,
				Row:          r.nameRow(e.Rows[len(e.Rows)-1]),
			}, nil
		case *replication.XIDEvent, *replication.RotateEvent:
			return nil, io.EOF
		default:
			continue
		}
	}
}

func rowsOp(t replication.EventType) (Op, bool) {
	switch t {
	case replication.WRITE_ROWS_EVENTv1, replication.WRITE_ROWS_EVENTv2:
		return OpInsert, true
	case replication.UPDATE_ROWS_EVENTv1, replication.UPDATE_ROWS_EVENTv2:
		return OpUpdate, true
	case replication.DELETE_ROWS_EVENTv1, replication.DELETE_ROWS_EVENTv2:
		return OpDelete, true
	default:
		return "", false
	}
}

// nameRow maps positional binlog values onto configured column names.
func (r *mysqlChangelog) nameRow(values []interface{}) map[string]interface{} {
	row := make(map[string]interface{}, len(values))
	for i, v := range values {
		if i >= len(r.cfg.Columns) {
			break
		}
		row[r.cfg.Columns[i]] = v
	}
	return row
}

func (r *mysqlChangelog) Close() error {
	if r.syncer != nil {
		r.syncer.Close()
		r.syncer = nil
		r.streamer = nil
	}
	return nil
}
