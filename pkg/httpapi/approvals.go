// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// ListApprovals lists unresolved approvals, oldest first.
func (h *Handler) ListApprovals(c *gin.Context) {
	approvals, err := h.rt.PendingApprovals(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, approvals)
}

// GetApproval returns one approval by id, resolved or not.
func (h *Handler) GetApproval(c *gin.Context) {
	a, err := h.rt.GetApproval(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// Approve settles a pending approval in the actor's favor and returns
// the replayed decision.
func (h *Handler) Approve(c *gin.Context) {
	d, err := h.rt.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"decision": toDecisionJSON(d)})
}

// Reject settles a pending approval against the actor.
func (h *Handler) Reject(c *gin.Context) {
	if err := h.rt.Reject(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "rejected"})
}

// EnterSandbox flips the system into sandbox mode and returns the
// sandbox actor.
func (h *Handler) EnterSandbox(c *gin.Context) {
	var input struct {
		ActorID string `json:"actor_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sb, err := h.rt.EnterSandbox(c.Request.Context(), input.ActorID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": string(h.rt.CurrentMode()), "sandbox_actor": toActorJSON(sb)})
}

// ExitSandbox returns to Normal mode. When the session drafted persona
// changes the response carries the approval holding them.
func (h *Handler) ExitSandbox(c *gin.Context) {
	var input struct {
		ActorID string `json:"actor_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	approval, err := h.rt.ExitSandbox(c.Request.Context(), input.ActorID)
	if err != nil {
		fail(c, err)
		return
	}
	out := gin.H{"mode": string(h.rt.CurrentMode())}
	if approval != nil {
		out["approval"] = approval
	}
	c.JSON(http.StatusOK, out)
}

// JournalEntries lists Captain's Log entry metadata for the sandbox
// actor.
func (h *Handler) JournalEntries(c *gin.Context) {
	actorID := c.Query("actor")
	if actorID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "actor is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	entries, err := h.rt.JournalEntries(actorID, limit)
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		out = append(out, gin.H{
			"id":   e.ID,
			"kind": string(e.Kind),
			"time": e.Time.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, out)
}

// JournalNote appends a private note to the Captain's Log.
func (h *Handler) JournalNote(c *gin.Context) {
	var input struct {
		ActorID string `json:"actor_id" binding:"required"`
		Note    string `json:"note" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entry, err := h.rt.JournalNote(c.Request.Context(), input.ActorID, []byte(input.Note))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": entry.ID})
}

// Collaborations lists active two-agent collaborations.
func (h *Handler) Collaborations(c *gin.Context) {
	collabs := h.rt.Comms().ActiveCollaborations()
	out := make([]gin.H, 0, len(collabs))
	for _, col := range collabs {
		out = append(out, gin.H{
			"id":       col.ID,
			"members":  col.Members,
			"started":  col.StartedAt.UTC().Format(time.RFC3339),
			"snippets": len(col.Snippets),
		})
	}
	c.JSON(http.StatusOK, out)
}

// SharedSnippets returns the snippets partners shared with the actor.
func (h *Handler) SharedSnippets(c *gin.Context) {
	actorID := c.Query("actor")
	if actorID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "actor is required"})
		return
	}
	snippets := h.rt.SharedSnippets(actorID)
	out := make([]gin.H, 0, len(snippets))
	for _, s := range snippets {
		out = append(out, gin.H{
			"from":      s.From,
			"shared_at": s.SharedAt.UTC().Format(time.RFC3339),
			"data":      base64.StdEncoding.EncodeToString(s.Data),
		})
	}
	c.JSON(http.StatusOK, out)
}

type pairInput struct {
	Sender   string `json:"sender" binding:"required"`
	Receiver string `json:"receiver" binding:"required"`
}

// AllowPair adds a sender→receiver pair to the standing allowlist.
func (h *Handler) AllowPair(c *gin.Context) {
	var input pairInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.rt.Comms().Allow(input.Sender, input.Receiver)
	c.JSON(http.StatusOK, gin.H{"status": "allowed"})
}

// RevokePair removes a pair from the allowlist and drops any pending
// temporary grant.
func (h *Handler) RevokePair(c *gin.Context) {
	sender, receiver := c.Query("sender"), c.Query("receiver")
	if sender == "" || receiver == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sender and receiver are required"})
		return
	}
	h.rt.Comms().Revoke(sender, receiver)
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}

// GrantPairOnce issues a single-use, expiring pair approval.
func (h *Handler) GrantPairOnce(c *gin.Context) {
	var input struct {
		pairInput
		TTL string `json:"ttl"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ttl := 5 * time.Minute
	if input.TTL != "" {
		parsed, err := time.ParseDuration(input.TTL)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ttl must be a positive duration"})
			return
		}
		ttl = parsed
	}
	h.rt.Comms().GrantOnce(input.Sender, input.Receiver, ttl)
	c.JSON(http.StatusOK, gin.H{"status": "granted", "ttl": ttl.String()})
}

// SendMessage authorizes one agent-to-agent message.
func (h *Handler) SendMessage(c *gin.Context) {
	var input struct {
		Sender  string `json:"sender" binding:"required"`
		Partner string `json:"partner" binding:"required"`
		Payload string `json:"payload"` // base64
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payload, err := base64.StdEncoding.DecodeString(input.Payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payload must be base64"})
		return
	}
	d, err := h.rt.SendAgentMessage(c.Request.Context(), input.Sender, input.Partner, payload)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"decision": toDecisionJSON(d)})
}

// ShareSnippets exposes an explicit subset of the sender's partition to
// the collaboration.
func (h *Handler) ShareSnippets(c *gin.Context) {
	var input struct {
		Sender  string `json:"sender" binding:"required"`
		Partner string `json:"partner" binding:"required"`
		Data    string `json:"data" binding:"required"` // base64
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	data, err := base64.StdEncoding.DecodeString(input.Data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "data must be base64"})
		return
	}
	d, err := h.rt.ShareSnippets(c.Request.Context(), input.Sender, input.Partner, data)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"decision": toDecisionJSON(d)})
}
