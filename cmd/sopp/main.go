// Command sopp is the CLI front end for the quad store: load, dump,
// query, update and (stub) serve, rebuilt on github.com/spf13/cobra
// from the teacher's bare flag-based verb set (-i import, -d dump).
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/boutros/quadstore"
	"github.com/boutros/quadstore/term"
)

var (
	dbPath   string
	memStore bool
	readOnly bool
	rdfStar  bool
	baseURI  string
	verbose  bool
)

func newLogger() *zap.Logger {
	if verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return zap.NewNop()
		}
		return l
	}
	return zap.NewNop()
}

func openStore() (*sopp.Store, *zap.Logger, error) {
	log := newLogger()
	opts := sopp.Options{
		Base:    term.IRI(baseURI),
		RDFStar: rdfStar,
		Logger:  log,
	}
	if memStore {
		return sopp.InMemory(opts), log, nil
	}
	if dbPath == "" {
		return nil, nil, fmt.Errorf("sopp: --db is required unless --mem is set")
	}
	if readOnly {
		s, err := sopp.OpenReadOnly(dbPath, opts)
		return s, log, err
	}
	s, err := sopp.Open(dbPath, opts)
	return s, log, err
}

func main() {
	root := &cobra.Command{
		Use:           "sopp",
		Short:         "An embedded RDF quad store with SPARQL 1.1 Query/Update",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "", "path to the database directory (omit with --mem)")
	root.PersistentFlags().BoolVar(&memStore, "mem", false, "use an in-memory store instead of --db")
	root.PersistentFlags().BoolVar(&readOnly, "read-only", false, "open the store read-only")
	root.PersistentFlags().BoolVar(&rdfStar, "rdf-star", false, "enable RDF-star <<s p o>> term syntax")
	root.PersistentFlags().StringVar(&baseURI, "base", "http://localhost/", "base IRI for relative references")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable development-mode logging")

	root.AddCommand(loadCmd(), dumpCmd(), queryCmd(), updateCmd(), serveCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadCmd() *cobra.Command {
	var graph string
	var batchBytes uint64
	cmd := &cobra.Command{
		Use:   "load <file>",
		Short: "Bulk-load N-Quads/Turtle into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, log, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			opts := sopp.LoadOptions{BatchBytes: batchBytes}
			if graph != "" {
				opts.Graph = term.IRI(graph)
			}
			start := time.Now()
			if err := s.Load(f, opts); err != nil {
				return err
			}
			log.Info("load complete", zap.String("file", args[0]), zap.Duration("took", time.Since(start)))
			return nil
		},
	}
	cmd.Flags().StringVar(&graph, "graph", "", "load every quad into this named graph, ignoring any graph term in the source")
	cmd.Flags().Uint64Var(&batchBytes, "batch-bytes", 0, "bulk-load batch size in bytes (0 uses the store default)")
	return cmd
}

func dumpCmd() *cobra.Command {
	var outFile string
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Write the whole store as N-Quads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			w := io.Writer(os.Stdout)
			if outFile != "" {
				f, err := os.Create(outFile)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return s.Dump(w)
		},
	}
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "write to this file instead of standard out")
	return cmd
}

// readQueryArg resolves a query/update argument that is either
// literal text or, prefixed with '@', a path to read the text from.
func readQueryArg(arg string) (string, error) {
	if strings.HasPrefix(arg, "@") {
		b, err := os.ReadFile(arg[1:])
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return arg, nil
}

func queryCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "query <sparql | @file>",
		Short: "Run a SPARQL Query (SELECT/ASK/CONSTRUCT/DESCRIBE)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			text, err := readQueryArg(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			res, err := s.Query(text, sopp.QueryOptions{Timeout: timeout, Cancellation: ctx})
			if err != nil {
				return err
			}
			return printQueryResult(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "cancel the query after this duration (0 means no timeout)")
	return cmd
}

func printQueryResult(w io.Writer, res sopp.QueryResult) error {
	switch {
	case res.Boolean != nil:
		fmt.Fprintln(w, *res.Boolean)
	case res.Solutions != nil:
		defer res.Solutions.Close()
		vars := res.Solutions.Vars()
		fmt.Fprintln(w, strings.Join(vars, "\t"))
		for {
			row, ok, err := res.Solutions.Next()
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			cells := make([]string, len(vars))
			for i, v := range vars {
				if t, ok := row[v]; ok {
					cells[i] = t.String()
				}
			}
			fmt.Fprintln(w, strings.Join(cells, "\t"))
		}
	case res.Quads != nil:
		defer res.Quads.Close()
		for {
			q, ok, err := res.Quads.Next()
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			if q.Graph != nil {
				fmt.Fprintf(w, "%s %s %s %s .\n", q.Subject, q.Predicate, q.Object, q.Graph)
			} else {
				fmt.Fprintf(w, "%s %s %s .\n", q.Subject, q.Predicate, q.Object)
			}
		}
	}
	return nil
}

func updateCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "update <sparql-update | @file>",
		Short: "Run a SPARQL Update request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, log, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			text, err := readQueryArg(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			start := time.Now()
			if err := s.Update(text, sopp.UpdateOptions{Timeout: timeout, Cancellation: ctx}); err != nil {
				return err
			}
			log.Info("update complete", zap.Duration("took", time.Since(start)))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "cancel the update after this duration (0 means no timeout)")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the SPARQL protocol over HTTP (not yet implemented)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("sopp: serve %s: HTTP SPARQL protocol endpoint is out of scope for this module", addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	return cmd
}
