package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/petreldb/petrel/internal/pipeline"
	"github.com/petreldb/petrel/pkg/chunk"
	"github.com/petreldb/petrel/pkg/config"
	"github.com/petreldb/petrel/pkg/connector"
	"github.com/petreldb/petrel/pkg/connector/builtin"
	"github.com/petreldb/petrel/pkg/connector/file"
	"github.com/petreldb/petrel/pkg/connector/lake"
	"github.com/petreldb/petrel/pkg/exec"
	"github.com/petreldb/petrel/pkg/expr"
	"github.com/petreldb/petrel/pkg/logger"
	"github.com/petreldb/petrel/pkg/plan"

	// Database drivers for the jdbc connector.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	var logLevel string
	root := &cobra.Command{
		Use:   "petrel",
		Short: "Petrel - pluggable columnar scan layer",
		Long: `Petrel reads heterogeneous backends through a single connector
abstraction: scan ranges become morsels, morsels become parallel drivers,
drivers pull columnar chunks with predicates pushed down.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Init(logger.Config{Level: logLevel, Encoding: "console"})
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Petrel v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "connectors",
		Short: "List registered connectors",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := newManager()
			if err != nil {
				return err
			}
			fmt.Println("Registered connectors:")
			for _, name := range manager.Names() {
				fmt.Printf("  - %s\n", name)
			}
			return nil
		},
	})

	var paths []string
	var columnsSpec, where, output string
	var limit int64
	var dop int
	var timeout time.Duration

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan JSONL files through the file connector",
		Long: `Scan one or more newline-delimited JSON files in parallel, with an
optional pushed-down predicate and limit. Rows print to stdout unless
--output redirects them to a JSONL file sink.

Example:
  petrel scan --path data.jsonl --columns id:int64,name:string --where "id > 10"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(paths, columnsSpec, where, output, limit, dop, timeout)
		},
	}
	scanCmd.Flags().StringSliceVarP(&paths, "path", "p", nil, "JSONL file to scan; repeat for multiple files (required)")
	scanCmd.Flags().StringVarP(&columnsSpec, "columns", "c", "", "Output layout as name:type pairs, e.g. id:int64,name:string (required)")
	_ = scanCmd.MarkFlagRequired("path")
	_ = scanCmd.MarkFlagRequired("columns")
	scanCmd.Flags().StringVar(&where, "where", "", `Pushed-down predicate, e.g. "id > 10"`)
	scanCmd.Flags().StringVarP(&output, "output", "o", "", "Write results to this JSONL file instead of stdout")
	scanCmd.Flags().Int64Var(&limit, "limit", -1, "Stop after this many rows")
	scanCmd.Flags().IntVar(&dop, "dop", runtime.NumCPU(), "Pipeline degree of parallelism")
	scanCmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Scan timeout")
	root.AddCommand(scanCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newManager builds a manager with every built-in connector. The CLI has no
// changelog endpoint to read, so the binlog connector stays unregistered.
func newManager() (*connector.ConnectorManager, error) {
	manager := connector.NewConnectorManager()
	err := builtin.RegisterAll(manager, builtin.Options{
		LakeStore: lake.NewStore(),
	})
	if err != nil {
		return nil, err
	}
	return manager, nil
}

func runScan(paths []string, columnsSpec, where, output string, limit int64, dop int, timeout time.Duration) error {
	desc, err := parseColumns(columnsSpec)
	if err != nil {
		return err
	}

	manager, err := newManager()
	if err != nil {
		return err
	}

	node := &plan.PlanNode{
		NodeID:        0,
		ConnectorName: connector.NameFile,
		TupleDesc:     desc,
		Limit:         limit,
	}
	scanNode := connector.NewScanNode(node)
	if where != "" {
		pred, err := parsePredicate(where, desc)
		if err != nil {
			return err
		}
		scanNode.SetConjuncts([]expr.Predicate{pred})
	}

	ranges := make([]*plan.ScanRange, 0, len(paths))
	for _, p := range paths {
		rng, err := file.NewScanRange(p)
		if err != nil {
			return err
		}
		ranges = append(ranges, rng)
	}

	executor, err := pipeline.NewScanExecutor(manager, scanNode)
	if err != nil {
		return err
	}

	cfg := config.DefaultScanConfig()
	cfg.Parallelism.PipelineDop = dop
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	state := exec.NewState(ctx, "cli", "cli-0", cfg)

	handler, finish, err := newOutput(output, node, state)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := executor.Run(state, ranges, handler); err != nil {
		finish(err)
		return err
	}
	if err := finish(nil); err != nil {
		return err
	}

	counts := scanNode.Profile().Snapshot()
	logger.Info("scan finished",
		zap.Int64("rows", counts["rows_read"]),
		zap.Int64("bytes", counts["bytes_read"]),
		zap.Int("scan_dop", executor.Provider().ScanDop()),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// newOutput returns the chunk handler for the scan plus a finish callback
// that commits or aborts whatever the handler accumulated.
func newOutput(output string, node *plan.PlanNode, state *exec.State) (pipeline.ChunkHandler, func(error) error, error) {
	if output == "" {
		handler := func(driverSeq int, ch *chunk.Chunk) error {
			return printChunk(ch)
		}
		return handler, func(error) error { return nil }, nil
	}

	sinkNode := *node
	sinkNode.Properties = map[string]string{"path": output}
	sinkProvider, err := file.NewConnector().CreateDataSinkProvider()
	if err != nil {
		return nil, nil, err
	}
	sink, err := sinkProvider.CreateChunkSink(&sinkNode, state, 0)
	if err != nil {
		return nil, nil, err
	}
	if err := sink.Open(state); err != nil {
		return nil, nil, err
	}

	// The sink is single-writer; serialize the concurrent drivers.
	sem := make(chan struct{}, 1)
	handler := func(driverSeq int, ch *chunk.Chunk) error {
		sem <- struct{}{}
		defer func() { <-sem }()
		return sink.AppendChunk(ch)
	}
	finish := func(runErr error) error {
		if runErr != nil {
			sink.Abort(state)
			return nil
		}
		return sink.Finish()
	}
	return handler, finish, nil
}

func printChunk(ch *chunk.Chunk) error {
	for i := 0; i < ch.NumRows(); i++ {
		row := make(map[string]interface{}, ch.NumColumns())
		for c := 0; c < ch.NumColumns(); c++ {
			row[ch.ColumnName(c)] = ch.ColumnAt(c).Get(i)
		}
		raw, err := json.Marshal(row)
		if err != nil {
			return err
		}
		fmt.Println(string(raw))
	}
	return nil
}

// parseColumns turns "id:int64,name:string" into a tuple descriptor.
func parseColumns(spec string) (*plan.TupleDescriptor, error) {
	parts := strings.Split(spec, ",")
	desc := &plan.TupleDescriptor{Slots: make([]plan.SlotDescriptor, 0, len(parts))}
	for i, part := range parts {
		nameType := strings.SplitN(strings.TrimSpace(part), ":", 2)
		if len(nameType) != 2 || nameType[0] == "" {
			return nil, fmt.Errorf("invalid column spec %q, want name:type", part)
		}
		t := plan.SlotType(nameType[1])
		switch t {
		case plan.SlotTypeInt64, plan.SlotTypeFloat64, plan.SlotTypeString, plan.SlotTypeBool:
		default:
			return nil, fmt.Errorf("unknown column type %q", nameType[1])
		}
		desc.Slots = append(desc.Slots, plan.SlotDescriptor{ID: i, Name: nameType[0], Type: t})
	}
	return desc, nil
}

// parsePredicate parses a single "column op value" comparison, typing the
// constant by the column's slot.
func parsePredicate(s string, desc *plan.TupleDescriptor) (expr.Predicate, error) {
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return nil, fmt.Errorf("invalid predicate %q, want \"column op value\"", s)
	}
	column, opStr, valStr := fields[0], fields[1], fields[2]

	slot := desc.Slot(column)
	if slot == nil {
		return nil, fmt.Errorf("predicate column %q not in --columns", column)
	}

	var op expr.CompareOp
	switch opStr {
	case "=", "==":
		op = expr.OpEQ
	case "!=", "<>":
		op = expr.OpNE
	case "<":
		op = expr.OpLT
	case "<=":
		op = expr.OpLE
	case ">":
		op = expr.OpGT
	case ">=":
		op = expr.OpGE
	default:
		return nil, fmt.Errorf("unknown operator %q", opStr)
	}

	var value interface{}
	switch slot.Type {
	case plan.SlotTypeInt64:
		v, err := strconv.ParseInt(valStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("predicate value %q is not an integer", valStr)
		}
		value = v
	case plan.SlotTypeFloat64:
		v, err := strconv.ParseFloat(valStr, 64)
		if err != nil {
			return nil, fmt.Errorf("predicate value %q is not a number", valStr)
		}
		value = v
	case plan.SlotTypeBool:
		v, err := strconv.ParseBool(valStr)
		if err != nil {
			return nil, fmt.Errorf("predicate value %q is not a bool", valStr)
		}
		value = v
	default:
		value = strings.Trim(valStr, `'"`)
	}
	return expr.NewComparePredicate(column, op, value), nil
}
