package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/quarry/internal/engine"
	"github.com/roach88/quarry/internal/exec"
	"github.com/roach88/quarry/internal/plan"
	"github.com/roach88/quarry/internal/storage"
)

// queryFile is the YAML shape of a query request file.
type queryFile struct {
	Entity   string               `yaml:"entity"`
	Unique   bool                 `yaml:"unique"`
	Where    map[string]any       `yaml:"where"`
	Select   []string             `yaml:"select"`
	Include  map[string]queryFile `yaml:"include"`
	OrderBy  []orderYAML          `yaml:"orderBy"`
	Skip     int                  `yaml:"skip"`
	Take     *int                 `yaml:"take"`
	Distinct []string             `yaml:"distinct"`
}

type orderYAML struct {
	Field string `yaml:"field"`
	Desc  bool   `yaml:"desc"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <schema-file> <db-file> <request-file>",
		Short: "Run a query request against a store",
		Long: `Run a query request described in YAML against a SQLite store.

The request file names an entity plus optional where, select, include,
orderBy, skip and take clauses. Results print as JSON records.`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(rootOpts, args[0], args[1], args[2], cmd)
		},
	}
	return cmd
}

func runQuery(opts *RootOptions, schemaPath, dbPath, requestPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	reg, err := LoadSchema(schemaPath)
	if err != nil {
		return commandError(formatter, "load schema", err)
	}

	data, err := os.ReadFile(requestPath)
	if err != nil {
		return commandError(formatter, "read request", err)
	}
	var qf queryFile
	if err := yaml.Unmarshal(data, &qf); err != nil {
		return commandError(formatter, "parse request", err)
	}

	store, err := storage.Open(dbPath, reg)
	if err != nil {
		return commandError(formatter, "open store", err)
	}
	defer store.Close()

	eng := engine.New(reg, store)
	req, err := buildRequest(eng, &qf)
	if err != nil {
		_ = formatter.Error("QUERY_INVALID", err.Error(), nil)
		return NewExitError(ExitFailure, fmt.Sprintf("invalid query: %v", err))
	}

	ctx := cmd.Context()
	var records []exec.Record
	if qf.Unique {
		rec, err := eng.FindUnique(ctx, req)
		if err != nil {
			_ = formatter.Error("QUERY_FAILED", err.Error(), nil)
			return NewExitError(ExitFailure, fmt.Sprintf("query failed: %v", err))
		}
		if rec != nil {
			records = []exec.Record{rec}
		}
	} else {
		records, err = eng.FindMany(ctx, req)
		if err != nil {
			_ = formatter.Error("QUERY_FAILED", err.Error(), nil)
			return NewExitError(ExitFailure, fmt.Sprintf("query failed: %v", err))
		}
	}

	formatter.VerboseLog("%d record(s) from %s", len(records), qf.Entity)
	return formatter.Success(records)
}

// buildRequest converts the YAML shape into a plan request, compiling
// the raw where clauses at every level.
func buildRequest(eng *engine.Engine, qf *queryFile) (*plan.Request, error) {
	if qf.Entity == "" {
		return nil, fmt.Errorf("request is missing an entity")
	}
	req := &plan.Request{
		Entity:   qf.Entity,
		Select:   qf.Select,
		Distinct: qf.Distinct,
		Skip:     qf.Skip,
		Take:     qf.Take,
		Unique:   qf.Unique,
	}
	if qf.Where != nil {
		node, err := eng.CompileFilter(qf.Entity, map[string]any(qf.Where))
		if err != nil {
			return nil, err
		}
		req.Filter = node
	}
	for _, o := range qf.OrderBy {
		req.OrderBy = append(req.OrderBy, plan.Order{Field: o.Field, Desc: o.Desc})
	}
	if len(qf.Include) > 0 {
		req.Include = make(map[string]*plan.Request, len(qf.Include))
		names := make([]string, 0, len(qf.Include))
		for name := range qf.Include {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			sub := qf.Include[name]
			ent, ok := eng.Registry().Entity(qf.Entity)
			if !ok {
				return nil, fmt.Errorf("unknown entity %q", qf.Entity)
			}
			rel, ok := ent.Relation(name)
			if !ok {
				return nil, fmt.Errorf("unknown relation %q on %q", name, qf.Entity)
			}
			if sub.Entity == "" {
				sub.Entity = rel.Target
			}
			child, err := buildRequest(eng, &sub)
			if err != nil {
				return nil, err
			}
			req.Include[name] = child
		}
	}
	return req, nil
}

func commandError(f *OutputFormatter, what string, err error) error {
	_ = f.Error("COMMAND_ERROR", fmt.Sprintf("%s: %v", what, err), nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %v", what, err))
}
