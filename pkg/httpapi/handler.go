// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpapi exposes the runtime over a local HTTP control
// surface. Front ends submit actions and mode commands here and render
// the decisions verbatim; every request still flows through the same
// Authorize entry point as in-process callers.
package httpapi

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/primus-os/primus/pkg/core"
	"github.com/primus-os/primus/pkg/errors"
	"github.com/primus-os/primus/pkg/runtime"
)

// Handler serves the control API for one runtime.
type Handler struct {
	rt  *runtime.Runtime
	log *slog.Logger
}

// New builds a handler over the runtime.
func New(rt *runtime.Runtime, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{rt: rt, log: log}
}

// Router builds the gin engine with every route mounted under /api.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(h.requestLog())

	api := r.Group("/api")
	{
		api.GET("/mode", h.Mode)
		api.GET("/health", h.Health)
		api.GET("/audit", h.AuditTail)

		api.GET("/actors", h.ListActors)
		api.POST("/actors", h.SpawnActor)
		api.GET("/actors/:id", h.GetActor)
		api.DELETE("/actors/:id", h.RetireActor)
		api.GET("/actors/:id/persona", h.GetPersona)
		api.POST("/actors/:id/persona", h.EditPersona)
		api.POST("/actors/:id/chat", h.ChatTurn)
		api.POST("/actors/:id/remember", h.Remember)
		api.GET("/actors/:id/recall", h.Recall)

		api.POST("/actions", h.Authorize)
		api.GET("/partitions/:class/:owner", h.ReadPartition)
		api.PUT("/partitions/:class/:owner", h.WritePartition)

		api.GET("/approvals", h.ListApprovals)
		api.GET("/approvals/:id", h.GetApproval)
		api.POST("/approvals/:id/approve", h.Approve)
		api.POST("/approvals/:id/reject", h.Reject)

		api.POST("/sandbox/enter", h.EnterSandbox)
		api.POST("/sandbox/exit", h.ExitSandbox)
		api.GET("/journal", h.JournalEntries)
		api.POST("/journal/notes", h.JournalNote)

		api.GET("/comms/collaborations", h.Collaborations)
		api.GET("/comms/shared", h.SharedSnippets)
		api.POST("/comms/pairs", h.AllowPair)
		api.DELETE("/comms/pairs", h.RevokePair)
		api.POST("/comms/grants", h.GrantPairOnce)
		api.POST("/comms/messages", h.SendMessage)
		api.POST("/comms/share", h.ShareSnippets)
	}
	return r
}

func (h *Handler) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.log.Debug("httpapi.request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(start)),
		)
	}
}

// decisionJSON is the wire form of a core.Decision.
type decisionJSON struct {
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	RuleID     string `json:"rule_id,omitempty"`
	ApprovalID string `json:"approval_id,omitempty"`
}

func toDecisionJSON(d core.Decision) decisionJSON {
	return decisionJSON{
		Status:     string(d.Status),
		Reason:     d.Reason,
		RuleID:     d.RuleID,
		ApprovalID: d.ApprovalID,
	}
}

func fail(c *gin.Context, err error) {
	pe := errors.AsPrimusError(err)
	c.JSON(pe.StatusCode, gin.H{
		"error": pe.Error(),
		"code":  string(pe.Code),
	})
}

// Mode reports the process-wide mode.
func (h *Handler) Mode(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"mode": string(h.rt.CurrentMode())})
}

// Health runs every registered checker and reports the overall status.
// 503 signals an unhealthy component so probes need no body parsing.
func (h *Handler) Health(c *gin.Context) {
	results, overall := h.rt.Health().CheckAll(c.Request.Context())
	components := make([]gin.H, 0, len(results))
	for _, r := range results {
		entry := gin.H{
			"component": r.Component,
			"status":    string(r.Status),
		}
		if r.Message != "" {
			entry["message"] = r.Message
		}
		if r.Error != nil {
			entry["error"] = r.Error.Error()
		}
		components = append(components, entry)
	}
	status := http.StatusOK
	if overall == core.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": string(overall), "components": components})
}

// AuditTail returns the n most recent audit records.
func (h *Handler) AuditTail(c *gin.Context) {
	n, err := strconv.Atoi(c.DefaultQuery("n", "20"))
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "n must be a non-negative integer"})
		return
	}
	records, err := h.rt.AuditTail(c.Request.Context(), n)
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]gin.H, 0, len(records))
	for _, r := range records {
		out = append(out, gin.H{
			"seq":         r.Seq,
			"time":        r.Time.UTC().Format(time.RFC3339Nano),
			"actor_id":    r.ActorID,
			"actor_kind":  string(r.ActorKind),
			"action_kind": string(r.ActionKind),
			"decision":    string(r.Decision),
			"mode":        string(r.Mode),
			"rule_id":     r.RuleID,
			"reason":      r.Reason,
		})
	}
	c.JSON(http.StatusOK, out)
}

// Authorize submits a generic action and returns the decision.
func (h *Handler) Authorize(c *gin.Context) {
	var input struct {
		ActorID string `json:"actor_id" binding:"required"`
		Kind    string `json:"kind" binding:"required"`
		Owner   string `json:"owner"`
		Class   string `json:"class"`
		Partner string `json:"partner"`
		Payload string `json:"payload"` // base64
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	kind := core.ActionKind(input.Kind)
	if !kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action kind " + input.Kind})
		return
	}

	action := core.NewAction(kind, input.ActorID)
	action.Partner = input.Partner
	if input.Owner != "" || input.Class != "" {
		class := core.PartitionClass(input.Class)
		if !class.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown partition class " + input.Class})
			return
		}
		action.Target = core.PartitionID{Owner: input.Owner, Class: class}
	}
	if input.Payload != "" {
		data, err := base64.StdEncoding.DecodeString(input.Payload)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "payload must be base64"})
			return
		}
		action.Payload = data
	}

	d, err := h.rt.Authorize(c.Request.Context(), action)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"action_id": action.ID, "decision": toDecisionJSON(d)})
}
