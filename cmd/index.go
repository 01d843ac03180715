package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"concierge/internal/chunker"
	"concierge/internal/embedder"
	"concierge/internal/index"
	"concierge/internal/pinecone"
	"concierge/internal/store"
)

var flagSkipRemote bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the chunk cache from the corpus and mirror it remotely",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		if cfg.OpenAIKey == "" {
			return errors.New("OPENAI_API_KEY is required to build the index")
		}

		if err := os.MkdirAll(filepath.Dir(cfg.CachePath), 0o755); err != nil {
			return fmt.Errorf("create cache directory: %w", err)
		}
		st, err := store.Open(cfg.CachePath)
		if err != nil {
			return err
		}
		defer st.Close()

		var remote *pinecone.Client
		if cfg.RemoteConfigured() {
			remote = pinecone.New(cfg.PineconeHost, cfg.PineconeKey, cfg.PineconeNamespace, cfg.UpstreamTimeout)
		}

		builder := index.NewBuilder(
			chunker.New(cfg.ChunkSize, cfg.ChunkOverlap),
			embedder.NewOpenAI(cfg.OpenAIKey, cfg.EmbeddingModel),
			st,
			remoteOrNil(remote),
			log,
		)

		stats, err := builder.Build(cmd.Context(), cfg.DataDir, index.Options{SkipRemote: flagSkipRemote})
		if err != nil {
			return err
		}

		fmt.Printf("indexed %d documents into %d chunks\n", stats.Documents, stats.Chunks)
		if stats.Mirrored {
			fmt.Printf("remote mirror: %d upserted, %d deleted\n", stats.Upserted, stats.Deleted)
		}
		return nil
	},
}

// remoteOrNil avoids handing the builder a typed nil behind its interface.
func remoteOrNil(c *pinecone.Client) index.Mirror {
	if c == nil {
		return nil
	}
	return c
}

func init() {
	indexCmd.Flags().BoolVar(&flagSkipRemote, "skip-remote", false, "rebuild the local cache without touching the remote index")
	rootCmd.AddCommand(indexCmd)
}
