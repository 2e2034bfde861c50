package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"taskforge/internal/config"
	"taskforge/internal/vecindex"
	"taskforge/internal/vecstore"

	"github.com/spf13/cobra"
)

var (
	vectorOutput    string
	vectorChunkSize int
	vectorOverlap   int
	vectorRoots     []string
	vectorTopK      int
)

// vectorCmd groups the vector store maintenance commands.
var vectorCmd = &cobra.Command{
	Use:   "vector",
	Short: "Manage the document vector index",
}

// vectorRebuildCmd drops the store and re-indexes every allowed source file.
var vectorRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the vector index from scratch",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		indexed, err := vecindex.Rebuild(vectorStorePath(cfg.Paths.VectorStore), repoDir, indexOptions(cfg))
		if err != nil {
			return err
		}
		printIndexed(indexed)
		return nil
	},
}

// vectorRefreshCmd re-indexes only the given files.
var vectorRefreshCmd = &cobra.Command{
	Use:   "refresh [paths...]",
	Short: "Re-index specific files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := vecstore.NewBuilder(vectorStorePath(cfg.Paths.VectorStore)).
			WithDimension(cfg.Index.Dimension).Build()
		if err != nil {
			return err
		}
		defer store.Close()

		indexed, err := vecindex.IndexPaths(store, args, repoDir, indexOptions(cfg))
		if err != nil {
			return err
		}
		printIndexed(indexed)
		return nil
	},
}

// vectorQueryCmd runs a similarity search against the index.
var vectorQueryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Search the vector index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := vecstore.NewBuilder(vectorStorePath(cfg.Paths.VectorStore)).
			WithDimension(cfg.Index.Dimension).Build()
		if err != nil {
			return err
		}
		defer store.Close()

		results, err := store.QueryText(args[0], vectorTopK)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("No matches.")
			return nil
		}
		for _, result := range results {
			fmt.Printf("%.4f  %s\n", result.Score, result.ID)
		}
		return nil
	},
}

func init() {
	vectorCmd.PersistentFlags().StringVarP(&vectorOutput, "output", "o", "", "vector store path (overrides config)")
	vectorCmd.PersistentFlags().IntVar(&vectorChunkSize, "chunk-size", 0, "chunk size in characters")
	vectorCmd.PersistentFlags().IntVar(&vectorOverlap, "overlap", -1, "chunk overlap in characters (-1 uses the config value)")
	vectorCmd.PersistentFlags().StringSliceVar(&vectorRoots, "include", nil, "indexable root directories")
	vectorQueryCmd.Flags().IntVarP(&vectorTopK, "top", "k", 5, "number of results")

	vectorCmd.AddCommand(vectorRebuildCmd)
	vectorCmd.AddCommand(vectorRefreshCmd)
	vectorCmd.AddCommand(vectorQueryCmd)
}

func vectorStorePath(configured string) string {
	if vectorOutput != "" {
		return vectorOutput
	}
	if filepath.IsAbs(configured) {
		return configured
	}
	return filepath.Join(repoDir, configured)
}

func indexOptions(cfg *config.Config) vecindex.Options {
	opts := vecindex.Options{
		ChunkSize: cfg.Index.ChunkSize,
		Overlap:   vecindex.Overlap(cfg.Index.Overlap),
		Roots:     cfg.Index.Roots,
	}
	if vectorChunkSize > 0 {
		opts.ChunkSize = vectorChunkSize
	}
	if vectorOverlap >= 0 {
		opts.Overlap = vecindex.Overlap(vectorOverlap)
	}
	if len(vectorRoots) > 0 {
		opts.Roots = vectorRoots
	}
	return opts
}

func printIndexed(indexed map[string]int) {
	if len(indexed) == 0 {
		fmt.Println("Nothing to index.")
		return
	}
	paths := make([]string, 0, len(indexed))
	for path := range indexed {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		fmt.Printf("%s: %d chunks\n", path, indexed[path])
	}
}
