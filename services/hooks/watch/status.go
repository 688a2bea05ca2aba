// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watch

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// StatusResponse is the body of GET /v1/watch/stats.
type StatusResponse struct {
	Root      string `json:"root"`
	Passed    int    `json:"passed"`
	Failed    int    `json:"failed"`
	Unchecked int    `json:"unchecked"`
	Uptime    string `json:"uptime"`
}

// NewStatusRouter builds the watch-mode status API.
//
// Description:
//
//	Routes:
//	  GET /health          - liveness
//	  GET /v1/watch/stats  - Session counters
//	  GET /metrics         - metrics, only when metrics is non-nil
//
// Inputs:
//
//	root - Watched directory, echoed in stats
//	session - Source of the counters
//	metrics - Prometheus handler or nil
func NewStatusRouter(root string, session *Session, metrics http.Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("aleutian-hooks-watch"))

	started := time.Now()

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1/watch")
	v1.GET("/stats", func(c *gin.Context) {
		st := session.Stats()
		c.JSON(http.StatusOK, StatusResponse{
			Root:      root,
			Passed:    st.Passed,
			Failed:    st.Failed,
			Unchecked: st.Unchecked,
			Uptime:    time.Since(started).Round(time.Second).String(),
		})
	})

	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}
	return router
}
