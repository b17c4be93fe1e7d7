// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"encoding/base64"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/primus-os/primus/pkg/actor"
	"github.com/primus-os/primus/pkg/core"
)

type actorJSON struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	ParentID  string `json:"parent_id,omitempty"`
	PersonaID string `json:"persona_id,omitempty"`
	CreatedAt string `json:"created_at"`
}

func toActorJSON(a actor.Actor) actorJSON {
	return actorJSON{
		ID:        a.ID,
		Kind:      string(a.Kind),
		Name:      a.Name,
		ParentID:  a.ParentID,
		PersonaID: a.Persona.DocID,
		CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ListActors lists all live actors.
func (h *Handler) ListActors(c *gin.Context) {
	actors := h.rt.Actors()
	out := make([]actorJSON, 0, len(actors))
	for _, a := range actors {
		out = append(out, toActorJSON(a))
	}
	c.JSON(http.StatusOK, out)
}

// SpawnActor creates an actor. Primus needs no parent; agents and
// subchats name their creator. The sandbox actor is never spawned here,
// only by entering sandbox mode.
func (h *Handler) SpawnActor(c *gin.Context) {
	var input struct {
		Kind     string `json:"kind" binding:"required"`
		Name     string `json:"name"`
		ParentID string `json:"parent_id"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var (
		a   actor.Actor
		err error
	)
	switch core.ActorKind(input.Kind) {
	case core.KindPrimus:
		a, err = h.rt.CreatePrimus(input.Name)
	case core.KindAgent:
		a, err = h.rt.SpawnAgent(input.ParentID, input.Name)
	case core.KindSubChat:
		a, err = h.rt.SpawnSubChat(input.ParentID, input.Name)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be primus, agent or subchat"})
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toActorJSON(a))
}

// GetActor returns one actor.
func (h *Handler) GetActor(c *gin.Context) {
	a, err := h.rt.GetActor(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toActorJSON(a))
}

// RetireActor removes an actor and its runtime state.
func (h *Handler) RetireActor(c *gin.Context) {
	if err := h.rt.RetireActor(c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "retired"})
}

// GetPersona returns the actor's persona document, following the
// subchat alias.
func (h *Handler) GetPersona(c *gin.Context) {
	doc, err := h.rt.Persona(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/yaml", doc)
}

// EditPersona submits a persona change through the policy core. The
// usual outcome for Primus is require_approval with the approval id to
// confirm.
func (h *Handler) EditPersona(c *gin.Context) {
	var input struct {
		Changes string `json:"changes" binding:"required"`
		Reason  string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := h.rt.EditPersona(c.Request.Context(), c.Param("id"), []byte(input.Changes), input.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"decision": toDecisionJSON(d)})
}

// ChatTurn runs one chat turn for the actor.
func (h *Handler) ChatTurn(c *gin.Context) {
	var input struct {
		Prompt string `json:"prompt" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	turn, err := h.rt.ChatTurn(c.Request.Context(), c.Param("id"), input.Prompt)
	if err != nil {
		fail(c, err)
		return
	}
	partitions := make([]string, 0, len(turn.Partitions))
	for _, p := range turn.Partitions {
		partitions = append(partitions, p.Key())
	}
	c.JSON(http.StatusOK, gin.H{
		"decision":   toDecisionJSON(turn.Decision),
		"reply":      turn.Reply,
		"partitions": partitions,
		"usage": gin.H{
			"prompt_tokens":     turn.Usage.PromptTokens,
			"completion_tokens": turn.Usage.CompletionTokens,
			"total_tokens":      turn.Usage.TotalTokens,
		},
	})
}

// Remember stores one retrievable memory in the actor's own partition
// index.
func (h *Handler) Remember(c *gin.Context) {
	var input struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, id, err := h.rt.Remember(c.Request.Context(), c.Param("id"), input.Text)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"decision": toDecisionJSON(d), "id": id})
}

// Recall searches the actor's own partition index.
func (h *Handler) Recall(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	results, d, err := h.rt.Recall(c.Request.Context(), c.Param("id"), query, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"decision": toDecisionJSON(d), "results": results})
}

func (h *Handler) partitionFromPath(c *gin.Context) (core.PartitionID, bool) {
	class := core.PartitionClass(c.Param("class"))
	if !class.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown partition class " + c.Param("class")})
		return core.PartitionID{}, false
	}
	owner := c.Param("owner")
	if owner == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner is required"})
		return core.PartitionID{}, false
	}
	return core.PartitionID{Owner: owner, Class: class}, true
}

// ReadPartition reads partition bytes on behalf of the actor in the
// actor query parameter. Denials come back as the decision with no
// data.
func (h *Handler) ReadPartition(c *gin.Context) {
	target, ok := h.partitionFromPath(c)
	if !ok {
		return
	}
	actorID := c.Query("actor")
	if actorID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "actor is required"})
		return
	}
	data, d, err := h.rt.ReadPartition(c.Request.Context(), actorID, target)
	if err != nil {
		fail(c, err)
		return
	}
	out := gin.H{"decision": toDecisionJSON(d)}
	if d.IsAllowed() {
		out["data"] = base64.StdEncoding.EncodeToString(data)
	}
	c.JSON(http.StatusOK, out)
}

// WritePartition writes the raw request body to the partition on
// behalf of the actor in the actor query parameter.
func (h *Handler) WritePartition(c *gin.Context) {
	target, ok := h.partitionFromPath(c)
	if !ok {
		return
	}
	actorID := c.Query("actor")
	if actorID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "actor is required"})
		return
	}
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := h.rt.WritePartition(c.Request.Context(), actorID, target, data)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"decision": toDecisionJSON(d)})
}
