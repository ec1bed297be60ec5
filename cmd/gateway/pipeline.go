package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vllora/gateway/admission"
	"github.com/vllora/gateway/config"
	"github.com/vllora/gateway/executor"
	"github.com/vllora/gateway/gwmodel"
	"github.com/vllora/gateway/interceptor"
	"github.com/vllora/gateway/registry"
	"github.com/vllora/gateway/router"
	"github.com/vllora/gateway/storage/sqlite"
	"github.com/vllora/gateway/telemetry"

	_ "github.com/vllora/gateway/providers/anthropic"
	_ "github.com/vllora/gateway/providers/bedrock"
	_ "github.com/vllora/gateway/providers/gemini"
	_ "github.com/vllora/gateway/providers/openaicompat"
	_ "github.com/vllora/gateway/providers/vertex"
)

// configCredentials resolves registry.CredentialSource against the loaded
// config file, the way the CLI's own credential lookup bridges YAML-declared
// providers to the gwmodel.Credentials shapes each adapter expects.
type configCredentials struct {
	cfg *config.Config
}

func (c *configCredentials) Lookup(_ context.Context, _ string, family gwmodel.ProviderFamily) (gwmodel.Credentials, error) {
	cred := c.cfg.ResolveCredential(string(family))
	switch family {
	case gwmodel.ProviderBedrock:
		return gwmodel.Credentials{
			Kind:            gwmodel.CredentialsAWS,
			AWSAccessKeyID:  cred.APIKey,
			AWSRegion:       cred.Region,
		}, nil
	case gwmodel.ProviderVertex:
		return gwmodel.Credentials{
			Kind:             gwmodel.CredentialsVertex,
			VertexProjectID:  cred.Project,
			VertexLocation:   cred.Region,
			VertexSAJSON:     []byte(cred.APIKey),
		}, nil
	default:
		if cred.APIKey == "" {
			return gwmodel.Credentials{Kind: gwmodel.CredentialsNone}, nil
		}
		return gwmodel.Credentials{Kind: gwmodel.CredentialsAPIKey, APIKey: cred.APIKey}, nil
	}
}

// pipeline bundles every constructed component a running gateway process
// needs, so serve.go and a future test harness can both build one the same
// way and tear it down cleanly.
type pipeline struct {
	executor *executor.Executor
	db       *sqlite.DB
}

// buildPipeline wires the registry, router, interceptor chain, admission
// gate, and telemetry backends described by cfg into one Executor, mirroring
// the teacher's own composition-root pattern: every cross-cutting concern is
// constructed once here and handed to the Executor as a field, rather than
// re-derived per request.
func buildPipeline(cfg *config.Config, dbPath string) (*pipeline, error) {
	db, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, err
	}

	reg := registry.New(&configCredentials{cfg: cfg})
	for _, entry := range cfg.Models {
		meta, err := entry.Metadata()
		if err != nil {
			db.Close()
			return nil, err
		}
		reg.RegisterModel(meta)
		if entry.Router != nil {
			reg.RegisterRouter(*entry.Router)
		}
	}

	promMetrics := telemetry.NewPrometheusMetricsRepository(prometheus.NewRegistry())
	rtr := router.New(promMetrics)

	logger := telemetry.NewClueLogger()
	metrics := telemetry.NewClueMetrics()
	tracer := telemetry.NewClueTracer()
	if cfg.Telemetry.OTLPEndpoint == "" {
		logger = telemetry.NewNoopLogger()
		metrics = telemetry.NewNoopMetrics()
		tracer = telemetry.NewNoopTracer()
	}

	chain, err := interceptor.NewChain(
		interceptor.NewLogging(logger),
		interceptor.NewValidation(interceptor.ValidationConfig{}),
		interceptor.NewMetrics(metrics),
		interceptor.NewCaching(db.KeyValueStore(), interceptor.CachingConfig{TTL: 5 * time.Minute}),
	)
	if err != nil {
		db.Close()
		return nil, err
	}

	costs := admission.NewInMemoryCostBucket(0)
	var rateLimiter *admission.RateLimiter
	if cfg.Admission.InitialTPM > 0 || cfg.Admission.MaxTPM > 0 {
		rateLimiter = admission.NewRateLimiter(nil, cfg.Admission.InitialTPM, cfg.Admission.MaxTPM)
	}
	gate := &admission.Gate{
		RateLimiter: rateLimiter,
		CostBucket:  costs,
		RequireAuth: cfg.Admission.RequireAuth,
	}

	exec := &executor.Executor{
		Registry:     reg,
		Router:       rtr,
		Interceptors: chain,
		Admitter:     gate,
		Costs:        costs,
		Tracer:       tracer,
		Metrics:      metrics,
		Logger:       logger,
	}

	return &pipeline{executor: exec, db: db}, nil
}

func (p *pipeline) Close() error {
	return p.db.Close()
}
