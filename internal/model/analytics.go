// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// UsageStats summarises tenant query activity.
type UsageStats struct {
	TotalQueries  int `json:"total_queries"`
	ActiveUsers   int `json:"active_users"`
	QueriesPerDay []struct {
		Date    string `json:"date"`
		Queries int    `json:"queries"`
	} `json:"queries_per_day"`
	ByDepartment []struct {
		Department string `json:"department"`
		Queries    int    `json:"queries"`
	} `json:"by_department"`
}

// TrendPoint is one day of an AI performance trend.
type TrendPoint struct {
	Date          string  `json:"date"`
	AvgConfidence float64 `json:"avg_confidence,omitempty"`
	AvgLatency    float64 `json:"avg_latency,omitempty"`
	Accuracy      float64 `json:"accuracy,omitempty"`
}

// AIPerformance summarises answer quality and cost.
type AIPerformance struct {
	AvgLatencyMS      float64      `json:"avg_latency_ms"`
	ConfidenceTrend   []TrendPoint `json:"confidence_trend"`
	AccuracyTrend     []TrendPoint `json:"model_accuracy_trend"`
	DriftDetected     bool         `json:"drift_detected"`
	TotalTokensInput  int64        `json:"total_tokens_input"`
	TotalTokensOutput int64        `json:"total_tokens_output"`
}
