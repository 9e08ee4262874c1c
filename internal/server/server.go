package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/literesearch/config"
	"github.com/mohammad-safakhou/literesearch/internal/research"
	"github.com/mohammad-safakhou/literesearch/internal/telemetry"
	"github.com/mohammad-safakhou/literesearch/provider"
)

type researchRequest struct {
	Topic              string `json:"topic"`
	ReportType         string `json:"report_type"`
	Tone               string `json:"tone"`
	MaxSubQueries      int    `json:"max_subqueries"`
	MaxSubtopics       int    `json:"max_subtopics"`
	MaxResultsPerQuery int    `json:"max_results_per_query"`
}

type researchResponse struct {
	Report   string            `json:"report"`
	Sections []research.Section `json:"sections"`
}

// Run starts the HTTP API.
func Run(cfgPath, addr string) error {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return err
	}
	if addr == "" {
		addr = cfg.Server.Address
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	tele := telemetry.NewTelemetry(cfg.Telemetry, nil)
	orch, err := research.NewOrchestrator(cfg, log.New(log.Writer(), "[ORCH] ", log.LstdFlags), tele)
	if err != nil {
		return err
	}

	api := e.Group("/api")
	api.POST("/research", handleResearch(cfg, orch))
	api.GET("/runs", func(c echo.Context) error {
		return c.JSON(http.StatusOK, orch.ActiveRuns())
	})
	api.GET("/costs", func(c echo.Context) error {
		return c.JSON(http.StatusOK, tele.GetCostSummary())
	})

	return e.Start(addr)
}

func handleResearch(cfg *config.Config, orch *research.Orchestrator) echo.HandlerFunc {
	return func(c echo.Context) error {
		var in researchRequest
		if err := c.Bind(&in); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}

		req, err := buildRequest(cfg, in)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		draft, err := orch.Run(c.Request().Context(), req)
		if err != nil {
			return mapRunError(err)
		}
		return c.JSON(http.StatusOK, researchResponse{Report: draft.Markdown(), Sections: draft.Sections})
	}
}

// buildRequest fills request defaults from configuration and validates
// the enums before the run starts.
func buildRequest(cfg *config.Config, in researchRequest) (research.Request, error) {
	if in.ReportType == "" {
		in.ReportType = string(research.ReportTypeSummary)
	}
	rt, err := research.ParseReportType(in.ReportType)
	if err != nil {
		return research.Request{}, err
	}
	tone, err := research.ParseTone(in.Tone)
	if err != nil {
		return research.Request{}, err
	}
	if in.MaxSubQueries == 0 {
		in.MaxSubQueries = cfg.Research.MaxSubQueries
	}
	if in.MaxSubtopics == 0 {
		in.MaxSubtopics = cfg.Research.MaxSubtopics
	}
	if in.MaxResultsPerQuery == 0 {
		in.MaxResultsPerQuery = cfg.Research.MaxResultsPerQuery
	}
	return research.Request{
		Topic:              in.Topic,
		ReportType:         rt,
		Tone:               tone,
		MaxSubQueries:      in.MaxSubQueries,
		MaxSubtopics:       in.MaxSubtopics,
		MaxResultsPerQuery: in.MaxResultsPerQuery,
	}, nil
}

func mapRunError(err error) error {
	switch {
	case research.IsConfigError(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case provider.IsTerminal(err):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "research run exceeded the processing time budget")
	default:
		return err
	}
}
