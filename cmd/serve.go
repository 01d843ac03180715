package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"concierge/internal/budget"
	"concierge/internal/corpus"
	"concierge/internal/embedder"
	"concierge/internal/llm"
	"concierge/internal/pinecone"
	"concierge/internal/relay"
	"concierge/internal/retrieval"
	"concierge/internal/server"
	"concierge/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		if cfg.OpenAIKey == "" {
			return errors.New("OPENAI_API_KEY is required to serve")
		}

		st, err := store.Open(cfg.CachePath)
		if err != nil {
			return err
		}
		defer st.Close()

		// A missing profile is survivable; LoadProfile returns neutral
		// defaults alongside the error.
		profile, err := corpus.LoadProfile(cfg.DataDir)
		if err != nil {
			log.Warn("profile unavailable, using defaults", zap.Error(err))
		}

		local := &retrieval.LocalSearcher{Store: st}
		var remote retrieval.Searcher
		if cfg.RemoteConfigured() {
			index := pinecone.New(cfg.PineconeHost, cfg.PineconeKey, cfg.PineconeNamespace, cfg.UpstreamTimeout)
			remote = &retrieval.RemoteSearcher{Index: index, Store: st}
			log.Info("remote index configured", zap.String("host", cfg.PineconeHost))
		} else {
			log.Info("no remote index configured, local cache serves alone")
		}

		engine := retrieval.NewEngine(remote, local, cfg.MinScore, log)
		emb := embedder.NewOpenAI(cfg.OpenAIKey, cfg.EmbeddingModel)
		provider := llm.NewOpenAI(cfg.OpenAIKey, cfg.ChatModel, cfg.MaxRetries, log)
		ledger := budget.NewLedger(cfg.MinuteBudgetEUR, cfg.HourBudgetEUR, cfg.DayBudgetEUR, cfg.MonthBudgetEUR)
		ips := budget.NewIPLimiter()

		r := relay.New(ledger, ips, emb, engine, provider, relay.DefaultCostModel(),
			profile, cfg.TopK, cfg.UpstreamTimeout, log)

		return server.New(r, ledger, ips, log).Run(cfg.Addr())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
