// Copyright 2026 © The PRIMUS Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"testing"

	"github.com/primus-os/primus/pkg/core"
)

func TestTemplateForClosedTable(t *testing.T) {
	for _, kind := range []core.ActorKind{core.KindPrimus, core.KindAgent, core.KindSubChat, core.KindSandbox} {
		g := TemplateFor(kind)
		if g.RAGWrite != RAGWriteOwn {
			t.Errorf("%s template RAGWrite = %q, want own", kind, g.RAGWrite)
		}
	}
}

func TestTemplateForUnknownKindPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("TemplateFor on unknown kind did not panic")
		}
	}()
	TemplateFor(core.ActorKind("daemon"))
}

func TestSubordinateTemplatesSubsetOfPrimus(t *testing.T) {
	primus := TemplateFor(core.KindPrimus)

	for _, kind := range []core.ActorKind{core.KindAgent, core.KindSubChat} {
		if !TemplateFor(kind).SubsetOf(primus) {
			t.Errorf("%s template exceeds the primus template", kind)
		}
	}
}

func TestSubChatPersonaWriteNeverTrue(t *testing.T) {
	template := TemplateFor(core.KindSubChat)
	if template.PersonaWrite {
		t.Fatal("subchat template has PersonaWrite set")
	}

	// Narrowing against any runtime grant, however permissive, can never
	// set the bit.
	widest := Grant{
		Internet:     InternetSession,
		AgentToAgent: true,
		SubChatCross: true,
		PersonaWrite: true,
		RAGWrite:     RAGWriteOwn,
	}
	if Narrow(template, widest).PersonaWrite {
		t.Error("Narrow widened PersonaWrite for a subchat grant")
	}
	if Narrow(widest, template).PersonaWrite {
		t.Error("Narrow is not symmetric for PersonaWrite")
	}
}

func TestNarrowTakesFieldWiseMinimum(t *testing.T) {
	tests := []struct {
		name string
		a, b Grant
		want Grant
	}{
		{
			name: "internet level drops to lower side",
			a:    Grant{Internet: InternetSession, RAGWrite: RAGWriteOwn},
			b:    Grant{Internet: InternetPerCall, RAGWrite: RAGWriteOwn},
			want: Grant{Internet: InternetPerCall, RAGWrite: RAGWriteOwn},
		},
		{
			name: "bools AND together",
			a:    Grant{AgentToAgent: true, SubChatCross: true, RAGWrite: RAGWriteOwn},
			b:    Grant{AgentToAgent: true, SubChatCross: false, RAGWrite: RAGWriteOwn},
			want: Grant{AgentToAgent: true, SubChatCross: false, RAGWrite: RAGWriteOwn},
		},
		{
			name: "rag scope drops to none",
			a:    Grant{RAGWrite: RAGWriteOwn},
			b:    Grant{RAGWrite: RAGWriteNone},
			want: Grant{RAGWrite: RAGWriteNone},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Narrow(tt.a, tt.b); got != tt.want {
				t.Errorf("Narrow() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNarrowNeverWidens(t *testing.T) {
	template := TemplateFor(core.KindAgent)
	narrowed := Narrow(template, Grant{Internet: InternetOff, RAGWrite: RAGWriteNone})

	if !narrowed.SubsetOf(template) {
		t.Errorf("narrowed grant %+v exceeds template %+v", narrowed, template)
	}
	if narrowed.Internet != InternetOff {
		t.Errorf("Internet = %q, want off", narrowed.Internet)
	}
	if narrowed.RAGWrite != RAGWriteNone {
		t.Errorf("RAGWrite = %q, want none", narrowed.RAGWrite)
	}
}
