// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRoutes(router *gin.Engine) {
	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		reg := v1.Group("/registry")
		{
			reg.GET("/metrics", s.handleListMetrics)
			reg.GET("/metrics/:key", s.handleGetMetric)
			reg.GET("/pricing/:model", s.handleGetPricing)
		}

		v1.POST("/cost/estimate", s.handleCostEstimate)

		analyses := v1.Group("/analyses")
		{
			analyses.POST("", s.handleCreateAnalysis)
			analyses.GET("", s.handleListAnalyses)
			analyses.GET("/events", s.handleEvents)
			analyses.GET("/:id", s.handleGetAnalysis)
			analyses.DELETE("/:id", s.handleDeleteAnalysis)
		}
	}
}
