// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"context"
	"strings"
	"testing"

	"github.com/primus-os/primus/pkg/actor"
	"github.com/primus-os/primus/pkg/core"
	"github.com/primus-os/primus/pkg/errors"
	"github.com/primus-os/primus/pkg/inference"
	"github.com/primus-os/primus/pkg/journal"
	"github.com/primus-os/primus/pkg/mode"
	"github.com/primus-os/primus/pkg/sealed"
)

func newTestRuntime(t *testing.T) (*Runtime, *inference.MockProvider) {
	t.Helper()
	j, err := journal.New(t.TempDir(), sealed.NoopCipher{})
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	mock := &inference.MockProvider{Response: "ok"}
	rt, err := New(
		WithJournal(j),
		WithProvider(mock),
		WithModel("test-model", 0),
		WithSweepInterval(0),
	)
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	return rt, mock
}

func createPrimus(t *testing.T, rt *Runtime) actor.Actor {
	t.Helper()
	p, err := rt.CreatePrimus("primus")
	if err != nil {
		t.Fatalf("create primus: %v", err)
	}
	return p
}

func auditLen(t *testing.T, rt *Runtime) int {
	t.Helper()
	n, err := rt.AuditLen(context.Background())
	if err != nil {
		t.Fatalf("audit len: %v", err)
	}
	return n
}

func TestAuthorizeStripsConfirmedFlag(t *testing.T) {
	rt, _ := newTestRuntime(t)
	p := createPrimus(t, rt)
	ctx := context.Background()

	action := core.NewAction(core.ActionPersonaEdit, p.ID)
	action.Payload = []byte("tone: warm\n")
	action.Confirmed = true

	d, err := rt.Authorize(ctx, action)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if !d.IsPending() {
		t.Fatalf("smuggled confirmed flag produced %s, want require_approval", d.Status)
	}
	if d.ApprovalID == "" {
		t.Fatal("pending decision carries no approval id")
	}
}

func TestPersonaApprovalFlow(t *testing.T) {
	rt, _ := newTestRuntime(t)
	p := createPrimus(t, rt)
	ctx := context.Background()

	d, err := rt.EditPersona(ctx, p.ID, []byte("tone: cheerful\n"), "user asked")
	if err != nil {
		t.Fatalf("edit persona: %v", err)
	}
	if !d.IsPending() {
		t.Fatalf("unconfirmed primus edit = %s, want require_approval", d.Status)
	}
	if got := rt.CurrentMode(); got != core.ModeApprovalPending {
		t.Fatalf("mode = %s, want approval_pending", got)
	}

	// A second submission of the same kind lands on the same entry.
	d2, err := rt.EditPersona(ctx, p.ID, []byte("tone: serious\n"), "")
	if err != nil {
		t.Fatalf("second edit: %v", err)
	}
	if d2.ApprovalID != d.ApprovalID {
		t.Fatalf("second submission approval %s, want existing %s", d2.ApprovalID, d.ApprovalID)
	}

	before := auditLen(t, rt)
	dec, err := rt.Approve(ctx, d.ApprovalID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !dec.IsAllowed() {
		t.Fatalf("replay decision = %s, want allow", dec.Status)
	}
	if got := auditLen(t, rt); got != before+1 {
		t.Fatalf("audit grew by %d records, want exactly 1", got-before)
	}
	tail, err := rt.AuditTail(ctx, 1)
	if err != nil || len(tail) != 1 {
		t.Fatalf("audit tail: %v (%d records)", err, len(tail))
	}
	if tail[0].Decision != core.DecisionAllow || tail[0].ActionKind != core.ActionPersonaEdit {
		t.Fatalf("last record = %s %s, want allow persona.edit", tail[0].Decision, tail[0].ActionKind)
	}

	doc, err := rt.Persona(p.ID)
	if err != nil {
		t.Fatalf("persona: %v", err)
	}
	if !strings.Contains(string(doc), "cheerful") {
		t.Fatalf("approved change missing from document:\n%s", doc)
	}
	if got := rt.CurrentMode(); got != core.ModeNormal {
		t.Fatalf("mode after approval = %s, want normal", got)
	}
}

func TestRejectLeavesPersonaUntouched(t *testing.T) {
	rt, _ := newTestRuntime(t)
	p := createPrimus(t, rt)
	ctx := context.Background()

	d, err := rt.EditPersona(ctx, p.ID, []byte("tone: bossy\n"), "")
	if err != nil || !d.IsPending() {
		t.Fatalf("edit: %v (decision %s)", err, d.Status)
	}

	before := auditLen(t, rt)
	if err := rt.Reject(ctx, d.ApprovalID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got := auditLen(t, rt); got != before {
		t.Fatalf("reject appended %d audit records, want 0", got-before)
	}
	doc, err := rt.Persona(p.ID)
	if err != nil {
		t.Fatalf("persona: %v", err)
	}
	if strings.Contains(string(doc), "bossy") {
		t.Fatal("rejected change reached the document")
	}
	if got := rt.CurrentMode(); got != core.ModeNormal {
		t.Fatalf("mode after reject = %s, want normal", got)
	}

	// The entry is settled; deciding it again fails.
	if _, err := rt.Approve(ctx, d.ApprovalID); !errors.HasCode(err, errors.CodeApprovalNotFound) {
		t.Fatalf("approve settled entry err = %v, want APPROVAL_NOT_FOUND", err)
	}
}

func TestSessionInternetConfirmedOnce(t *testing.T) {
	rt, _ := newTestRuntime(t)
	p := createPrimus(t, rt)
	ctx := context.Background()

	d, err := rt.Authorize(ctx, core.NewAction(core.ActionNetCall, p.ID))
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if !d.IsPending() {
		t.Fatalf("first session call = %s, want require_approval", d.Status)
	}

	if _, err := rt.Approve(ctx, d.ApprovalID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	// The session grant holds: later calls pass without a new approval.
	d2, err := rt.Authorize(ctx, core.NewAction(core.ActionNetCall, p.ID))
	if err != nil {
		t.Fatalf("second authorize: %v", err)
	}
	if !d2.IsAllowed() {
		t.Fatalf("second session call = %s, want allow", d2.Status)
	}
	if got := rt.CurrentMode(); got != core.ModeNormal {
		t.Fatalf("mode = %s, want normal", got)
	}
}

func TestPerCallInternetNeedsApprovalEveryTime(t *testing.T) {
	rt, _ := newTestRuntime(t)
	p := createPrimus(t, rt)
	ctx := context.Background()

	agent, err := rt.SpawnAgent(p.ID, "researcher")
	if err != nil {
		t.Fatalf("spawn agent: %v", err)
	}

	d, err := rt.Authorize(ctx, core.NewAction(core.ActionNetCall, agent.ID))
	if err != nil || !d.IsPending() {
		t.Fatalf("first call: %v (decision %s)", err, d.Status)
	}
	if _, err := rt.Approve(ctx, d.ApprovalID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	// Per-call grants never enter the session set.
	d2, err := rt.Authorize(ctx, core.NewAction(core.ActionNetCall, agent.ID))
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !d2.IsPending() {
		t.Fatalf("second per-call request = %s, want require_approval", d2.Status)
	}
}

func TestSandboxEntryBlockedWhilePending(t *testing.T) {
	rt, _ := newTestRuntime(t)
	p := createPrimus(t, rt)
	ctx := context.Background()

	d, err := rt.EditPersona(ctx, p.ID, []byte("tone: calm\n"), "")
	if err != nil || !d.IsPending() {
		t.Fatalf("edit: %v (decision %s)", err, d.Status)
	}

	if _, err := rt.EnterSandbox(ctx, p.ID); !errors.HasCode(err, errors.CodeTransitionRejected) {
		t.Fatalf("enter sandbox err = %v, want TRANSITION_REJECTED", err)
	}
	if got := rt.CurrentMode(); got != core.ModeApprovalPending {
		t.Fatalf("mode = %s, want approval_pending", got)
	}
}

func TestSandboxDraftHeldUntilNormalModeConfirmation(t *testing.T) {
	rt, _ := newTestRuntime(t)
	p := createPrimus(t, rt)
	ctx := context.Background()

	sb, err := rt.EnterSandbox(ctx, p.ID)
	if err != nil {
		t.Fatalf("enter sandbox: %v", err)
	}
	if got := rt.CurrentMode(); got != core.ModeSandbox {
		t.Fatalf("mode = %s, want sandbox", got)
	}
	frozen := auditLen(t, rt)

	// Private note, a drafted persona change, and a denied action: none
	// of them may move the audit log while the sandbox lasts.
	if _, err := rt.JournalNote(ctx, sb.ID, []byte("thinking out loud")); err != nil {
		t.Fatalf("journal note: %v", err)
	}
	d, err := rt.EditPersona(ctx, sb.ID, []byte("verbosity: terse\n"), "")
	if err != nil {
		t.Fatalf("sandbox edit: %v", err)
	}
	if !d.IsAllowed() {
		t.Fatalf("sandbox edit = %s (%s), want allow", d.Status, d.Reason)
	}
	dn, err := rt.Authorize(ctx, core.NewAction(core.ActionNetCall, p.ID))
	if err != nil {
		t.Fatalf("net call: %v", err)
	}
	if !dn.IsDenied() {
		t.Fatalf("net call in sandbox = %s, want deny", dn.Status)
	}
	if got := auditLen(t, rt); got != frozen {
		t.Fatalf("audit moved by %d records during sandbox, want 0", got-frozen)
	}

	approval, err := rt.ExitSandbox(ctx, p.ID)
	if err != nil {
		t.Fatalf("exit sandbox: %v", err)
	}
	if approval == nil {
		t.Fatal("exit with drafts returned no approval")
	}
	if got := rt.CurrentMode(); got != core.ModeApprovalPending {
		t.Fatalf("mode after exit = %s, want approval_pending", got)
	}
	if got := auditLen(t, rt); got != frozen+1 {
		t.Fatalf("audit grew by %d after exit, want 1 (the submission)", got-frozen)
	}

	doc, err := rt.Persona(p.ID)
	if err != nil {
		t.Fatalf("persona: %v", err)
	}
	if strings.Contains(string(doc), "terse") {
		t.Fatal("drafted change applied before confirmation")
	}

	dec, err := rt.Approve(ctx, approval.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !dec.IsAllowed() {
		t.Fatalf("replay = %s, want allow", dec.Status)
	}
	doc, err = rt.Persona(p.ID)
	if err != nil {
		t.Fatalf("persona: %v", err)
	}
	if !strings.Contains(string(doc), "terse") {
		t.Fatalf("confirmed draft missing from document:\n%s", doc)
	}
	if got := rt.CurrentMode(); got != core.ModeNormal {
		t.Fatalf("mode = %s, want normal", got)
	}
}

func TestSandboxExitWithoutDrafts(t *testing.T) {
	rt, _ := newTestRuntime(t)
	p := createPrimus(t, rt)
	ctx := context.Background()

	if _, err := rt.EnterSandbox(ctx, p.ID); err != nil {
		t.Fatalf("enter: %v", err)
	}
	approval, err := rt.ExitSandbox(ctx, p.ID)
	if err != nil {
		t.Fatalf("exit: %v", err)
	}
	if approval != nil {
		t.Fatalf("exit without drafts returned approval %s", approval.ID)
	}
	if got := rt.CurrentMode(); got != core.ModeNormal {
		t.Fatalf("mode = %s, want normal", got)
	}
}

func TestJournalGatedOnSandboxMode(t *testing.T) {
	rt, _ := newTestRuntime(t)
	p := createPrimus(t, rt)
	ctx := context.Background()

	if _, err := rt.JournalNote(ctx, p.ID, []byte("x")); !errors.HasCode(err, errors.CodeTransitionRejected) {
		t.Fatalf("note outside sandbox err = %v, want TRANSITION_REJECTED", err)
	}

	sb, err := rt.EnterSandbox(ctx, p.ID)
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	// Only the sandbox actor writes the journal, even in sandbox mode.
	if _, err := rt.JournalNote(ctx, p.ID, []byte("x")); !errors.HasCode(err, errors.CodeInvalidInput) {
		t.Fatalf("primus note err = %v, want INVALID_INPUT", err)
	}
	entry, err := rt.JournalNote(ctx, sb.ID, []byte("today I tried"))
	if err != nil {
		t.Fatalf("sandbox note: %v", err)
	}
	got, err := rt.JournalRead(sb.ID, entry.ID)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got.Note) != "today I tried" {
		t.Fatalf("note = %q", got.Note)
	}
}

func TestSubChatPersonaEditDenied(t *testing.T) {
	rt, _ := newTestRuntime(t)
	p := createPrimus(t, rt)
	ctx := context.Background()

	sub, err := rt.SpawnSubChat(p.ID, "side quest")
	if err != nil {
		t.Fatalf("spawn subchat: %v", err)
	}
	d, err := rt.EditPersona(ctx, sub.ID, []byte("tone: rogue\n"), "")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if !d.IsDenied() {
		t.Fatalf("subchat persona edit = %s, want deny", d.Status)
	}
	// The subchat reads its parent's document through the alias.
	doc, err := rt.Persona(sub.ID)
	if err != nil {
		t.Fatalf("persona: %v", err)
	}
	if strings.Contains(string(doc), "rogue") {
		t.Fatal("denied edit reached the aliased document")
	}
}

func TestPartitionReadWriteThroughGuard(t *testing.T) {
	rt, _ := newTestRuntime(t)
	p := createPrimus(t, rt)
	ctx := context.Background()

	agent, err := rt.SpawnAgent(p.ID, "scribe")
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	d, err := rt.WritePartition(ctx, agent.ID, agent.OwnPartition(), []byte("field notes"))
	if err != nil || !d.IsAllowed() {
		t.Fatalf("own write: %v (decision %s)", err, d.Status)
	}
	data, d, err := rt.ReadPartition(ctx, agent.ID, agent.OwnPartition())
	if err != nil || !d.IsAllowed() {
		t.Fatalf("own read: %v (decision %s)", err, d.Status)
	}
	if string(data) != "field notes" {
		t.Fatalf("read %q", data)
	}

	// Agents cannot write the shared global partition.
	d, err = rt.WritePartition(ctx, agent.ID, p.OwnPartition(), []byte("graffiti"))
	if err != nil {
		t.Fatalf("global write: %v", err)
	}
	if !d.IsDenied() {
		t.Fatalf("agent global write = %s, want deny", d.Status)
	}

	// Another agent's private partition stays private.
	other, err := rt.SpawnAgent(p.ID, "rival")
	if err != nil {
		t.Fatalf("spawn rival: %v", err)
	}
	data, d, err = rt.ReadPartition(ctx, other.ID, agent.OwnPartition())
	if err != nil {
		t.Fatalf("cross read: %v", err)
	}
	if !d.IsDenied() || data != nil {
		t.Fatalf("cross agent read = %s with %d bytes, want deny with none", d.Status, len(data))
	}

	// A read of a partition nobody wrote comes back empty, not failed.
	fresh, err := rt.SpawnAgent(p.ID, "fresh")
	if err != nil {
		t.Fatalf("spawn fresh: %v", err)
	}
	data, d, err = rt.ReadPartition(ctx, fresh.ID, fresh.OwnPartition())
	if err != nil || !d.IsAllowed() {
		t.Fatalf("fresh read: %v (decision %s)", err, d.Status)
	}
	if len(data) != 0 {
		t.Fatalf("fresh partition returned %q", data)
	}
}

func TestAgentMessagingAndSharing(t *testing.T) {
	rt, _ := newTestRuntime(t)
	p := createPrimus(t, rt)
	ctx := context.Background()

	a, err := rt.SpawnAgent(p.ID, "alpha")
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	b, err := rt.SpawnAgent(p.ID, "beta")
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	c, err := rt.SpawnAgent(p.ID, "gamma")
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	// No allowlist entry, no grant: denied.
	d, err := rt.SendAgentMessage(ctx, a.ID, b.ID, []byte("hi"))
	if err != nil {
		t.Fatalf("message: %v", err)
	}
	if !d.IsDenied() {
		t.Fatalf("unauthorized pair = %s, want deny", d.Status)
	}

	rt.Comms().Allow(a.ID, b.ID)
	d, err = rt.SendAgentMessage(ctx, a.ID, b.ID, []byte("hi"))
	if err != nil || !d.IsAllowed() {
		t.Fatalf("allowlisted message: %v (decision %s)", err, d.Status)
	}

	// Two agents collaborate; a third joiner is refused.
	rt.Comms().Allow(c.ID, b.ID)
	d, err = rt.SendAgentMessage(ctx, c.ID, b.ID, []byte("me too"))
	if err != nil {
		t.Fatalf("third joiner: %v", err)
	}
	if !d.IsDenied() {
		t.Fatalf("third joiner = %s, want deny", d.Status)
	}

	// Sharing copies the snippet into the collaboration.
	d, err = rt.ShareSnippets(ctx, a.ID, b.ID, []byte("excerpt"))
	if err != nil || !d.IsAllowed() {
		t.Fatalf("share: %v (decision %s)", err, d.Status)
	}
	shared := rt.SharedSnippets(b.ID)
	if len(shared) != 1 || string(shared[0].Data) != "excerpt" {
		t.Fatalf("shared snippets = %+v", shared)
	}

	// The share never lands in the sender's partition or the partner's.
	data, _, err := rt.ReadPartition(ctx, b.ID, b.OwnPartition())
	if err != nil {
		t.Fatalf("partner read: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("partner partition contains %q", data)
	}
}

func TestSweepOrphansDiscardsWithoutApproving(t *testing.T) {
	rt, _ := newTestRuntime(t)
	p := createPrimus(t, rt)
	ctx := context.Background()

	agent, err := rt.SpawnAgent(p.ID, "doomed")
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	d, err := rt.Authorize(ctx, core.NewAction(core.ActionNetCall, agent.ID))
	if err != nil || !d.IsPending() {
		t.Fatalf("net call: %v (decision %s)", err, d.Status)
	}
	if err := rt.RetireActor(agent.ID); err != nil {
		t.Fatalf("retire: %v", err)
	}

	swept, err := rt.SweepOrphans(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 1 {
		t.Fatalf("swept %d, want 1", swept)
	}
	pending, err := rt.PendingApprovals(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("%d approvals left, want 0", len(pending))
	}
	if got := rt.CurrentMode(); got != core.ModeNormal {
		t.Fatalf("mode = %s, want normal", got)
	}
	// The entry was rejected, not approved.
	a, err := rt.GetApproval(ctx, d.ApprovalID)
	if err != nil {
		t.Fatalf("get approval: %v", err)
	}
	if a.Status != mode.ApprovalStatusRejected {
		t.Fatalf("status = %s, want rejected", a.Status)
	}

	// Nothing left to sweep.
	swept, err = rt.SweepOrphans(ctx)
	if err != nil || swept != 0 {
		t.Fatalf("second sweep = %d (%v), want 0", swept, err)
	}
}
