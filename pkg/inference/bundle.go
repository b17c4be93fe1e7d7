// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

package inference

import (
	"fmt"
	"strings"

	"github.com/primus-os/primus/pkg/core"
)

// Snippet is one piece of partition content cleared for the prompt. The
// runtime only adds snippets it fetched with a guard-issued token, so a
// bundle can never carry bytes the actor was not allowed to read.
type Snippet struct {
	Partition core.PartitionID
	Source    string
	Data      []byte
}

// Bundle is the context assembled for one chat turn.
type Bundle struct {
	ActorID  string
	Prompt   string
	snippets []Snippet
}

// NewBundle starts an empty bundle for the actor's prompt.
func NewBundle(actorID, prompt string) *Bundle {
	return &Bundle{ActorID: actorID, Prompt: prompt}
}

// Add appends a cleared snippet. The data is copied.
func (b *Bundle) Add(s Snippet) {
	s.Data = append([]byte(nil), s.Data...)
	b.snippets = append(b.snippets, s)
}

// Snippets returns a copy of the bundle contents.
func (b *Bundle) Snippets() []Snippet {
	return append([]Snippet(nil), b.snippets...)
}

// Partitions lists the distinct partitions feeding the bundle.
func (b *Bundle) Partitions() []core.PartitionID {
	seen := make(map[core.PartitionID]bool, len(b.snippets))
	var out []core.PartitionID
	for _, s := range b.snippets {
		if seen[s.Partition] {
			continue
		}
		seen[s.Partition] = true
		out = append(out, s.Partition)
	}
	return out
}

// Messages renders the bundle into the provider wire shape: one system
// message holding the cleared context, then the actor's prompt.
func (b *Bundle) Messages() []Message {
	msgs := make([]Message, 0, 2)
	if len(b.snippets) > 0 {
		var sb strings.Builder
		sb.WriteString("Context cleared for this turn:\n")
		for _, s := range b.snippets {
			fmt.Fprintf(&sb, "\n[%s/%s", s.Partition.Class, s.Partition.Owner)
			if s.Source != "" {
				fmt.Fprintf(&sb, " %s", s.Source)
			}
			sb.WriteString("]\n")
			sb.Write(s.Data)
			sb.WriteString("\n")
		}
		msgs = append(msgs, Message{Role: RoleSystem, Content: sb.String()})
	}
	msgs = append(msgs, Message{Role: RoleUser, Content: b.Prompt})
	return msgs
}
