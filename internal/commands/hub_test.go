package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggmhub/hub/internal/agents"
	"github.com/ggmhub/hub/internal/content"
	"github.com/ggmhub/hub/internal/email"
	"github.com/ggmhub/hub/internal/facebook"
	"github.com/ggmhub/hub/internal/store"
)

var hubNow = time.Date(2025, 3, 5, 10, 0, 0, 0, time.Local)

type fakeEngine struct {
	mu   sync.Mutex
	sent []email.Message
	fail map[string]bool // recipient emails that bounce
}

func (e *fakeEngine) Send(ctx context.Context, msg email.Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(msg.To) > 0 && e.fail[msg.To[0].Email] {
		return errors.New("550 mailbox unavailable")
	}
	e.sent = append(e.sent, msg)
	return nil
}

type fakeRecords struct {
	bookings  []store.Booking
	jobs      []store.Job
	clients   []store.Client
	invoices  map[string]*store.Invoice
	err       error
	askedDays []time.Time
}

func (r *fakeRecords) BookingsOn(ctx context.Context, date time.Time) ([]store.Booking, error) {
	r.askedDays = append(r.askedDays, date)
	return r.bookings, r.err
}

func (r *fakeRecords) JobsCompletedOn(ctx context.Context, date time.Time) ([]store.Job, error) {
	r.askedDays = append(r.askedDays, date)
	return r.jobs, r.err
}

func (r *fakeRecords) MarketingClients(ctx context.Context) ([]store.Client, error) {
	return r.clients, r.err
}

func (r *fakeRecords) GetInvoice(ctx context.Context, ref string) (*store.Invoice, error) {
	if inv, ok := r.invoices[ref]; ok {
		return inv, nil
	}
	return nil, fmt.Errorf("invoice %s: %w", ref, store.ErrNotFound)
}

type fakeGenerator struct {
	post   content.BlogPost
	letter content.Newsletter
	topic  string
	blog   content.BlogOptions
	news   content.NewsletterOptions
}

func (g *fakeGenerator) GenerateBlogPost(ctx context.Context, topic string, opts content.BlogOptions) content.BlogPost {
	g.topic, g.blog = topic, opts
	return g.post
}

func (g *fakeGenerator) GenerateNewsletter(ctx context.Context, template string, opts content.NewsletterOptions) content.Newsletter {
	g.news = opts
	return g.letter
}

type fakeDrafts struct {
	drafts []agents.Draft
	err    error
}

func (d *fakeDrafts) SaveDraftArtifact(ctx context.Context, draft agents.Draft) (int64, error) {
	if d.err != nil {
		return 0, d.err
	}
	d.drafts = append(d.drafts, draft)
	return int64(len(d.drafts)), nil
}

type fakeRunner struct {
	outcome agents.RunOutcome
	err     error
	ids     []int64
}

func (f *fakeRunner) RunNow(ctx context.Context, id int64) (agents.RunOutcome, error) {
	f.ids = append(f.ids, id)
	return f.outcome, f.err
}

type fakePublisher struct {
	configured bool
	posts      []facebook.Post
}

func (p *fakePublisher) Configured() bool { return p.configured }

func (p *fakePublisher) Publish(ctx context.Context, post facebook.Post) (string, error) {
	p.posts = append(p.posts, post)
	return "123_456", nil
}

func hubRegistry(deps HubDeps) *Registry {
	if deps.Now == nil {
		deps.Now = func() time.Time { return hubNow }
	}
	r := NewRegistry(nil)
	RegisterHub(r, deps)
	return r
}

func dispatch(r *Registry, command, data string) Result {
	req := Request{Payload: DecodePayload(data)}
	req.Command.Command = command
	req.Command.Source = "laptop"
	return r.Dispatch(context.Background(), req)
}

func TestRegisterHub_Commands(t *testing.T) {
	r := hubRegistry(HubDeps{})
	assert.Equal(t, []string{
		"force_sync", "generate_blog", "generate_newsletter", "post_to_facebook",
		"run_agent", "run_email_lifecycle", "send_booking_confirmation", "send_completion",
		"send_enquiry_reply", "send_invoice", "send_quote_email", "send_reminders",
	}, r.Names())
}

func TestHub_MissingCollaboratorsAreUnavailable(t *testing.T) {
	r := hubRegistry(HubDeps{})
	for _, name := range r.Names() {
		t.Run(name, func(t *testing.T) {
			res := dispatch(r, name, `{"agent_id":1,"invoice_id":"1","job":{"email":"a@b.co"}}`)
			assert.Equal(t, KindUnavailable, res.Kind, res.Message)
		})
	}
}

func TestHub_GenerateBlog(t *testing.T) {
	gen := &fakeGenerator{post: content.BlogPost{Title: "Spring lawn care", Content: "body", Excerpt: "Get ready", Persona: "Dave"}}
	drafts := &fakeDrafts{}
	notifier := &recordingNotifier{err: errors.New("offline")}
	r := hubRegistry(HubDeps{Generator: gen, Drafts: drafts, Notifier: notifier})

	res := dispatch(r, CmdGenerateBlog, `{"topic":"lawns","persona":"Dave","keywords":"lawn, moss","word_count":600}`)
	assert.Equal(t, Ok("Blog draft saved: Spring lawn care (approval requested)"), res)
	assert.Equal(t, "lawns", gen.topic)
	assert.Equal(t, content.BlogOptions{Persona: "Dave", Words: 600, Keywords: []string{"lawn", "moss"}}, gen.blog)

	require.Len(t, drafts.drafts, 1)
	assert.Equal(t, agents.DraftBlog, drafts.drafts[0].Kind)
	assert.Equal(t, "Get ready", drafts.drafts[0].Excerpt)
	require.Len(t, notifier.Sent(), 1)
}

func TestHub_GenerateBlog_Failures(t *testing.T) {
	gen := &fakeGenerator{post: content.BlogPost{Error: "no provider reachable"}}
	res := dispatch(hubRegistry(HubDeps{Generator: gen}), CmdGenerateBlog, `{}`)
	assert.Equal(t, Result{Kind: KindError, Message: "no provider reachable"}, res)
	assert.Equal(t, content.SeasonalTopic(hubNow), gen.topic)

	gen = &fakeGenerator{post: content.BlogPost{Title: "T"}}
	res = dispatch(hubRegistry(HubDeps{Generator: gen, Drafts: &fakeDrafts{err: errors.New("disk full")}}), CmdGenerateBlog, `{}`)
	assert.Equal(t, KindError, res.Kind)
	assert.Equal(t, "save blog draft: disk full", res.Message)
}

func TestHub_GenerateNewsletter(t *testing.T) {
	gen := &fakeGenerator{letter: content.Newsletter{Subject: "March in the garden", Body: "..."}}
	drafts := &fakeDrafts{}
	r := hubRegistry(HubDeps{Generator: gen, Drafts: drafts})

	res := dispatch(r, CmdGenerateNewsletter, `{"persona":"Sue"}`)
	assert.Equal(t, Ok("Newsletter draft stored for review: March in the garden (all)"), res)
	assert.Equal(t, "March 2025", gen.news.Month)
	require.Len(t, drafts.drafts, 1)
	assert.Equal(t, agents.DraftNewsletter, drafts.drafts[0].Kind)
	assert.Equal(t, "all", drafts.drafts[0].Audience)
}

func TestHub_SendReminders(t *testing.T) {
	day := time.Date(2025, 3, 6, 0, 0, 0, 0, time.Local)
	records := &fakeRecords{bookings: []store.Booking{
		{ID: 1, Client: store.Client{Name: "Jane Smith", Email: "jane@example.com", Postcode: "TR1 1AA"}, Service: "Lawn mowing", Date: day, Time: "09:00"},
		{ID: 2, Client: store.Client{Name: "Bob", Email: "bounce@example.com"}, Service: "Hedge trim", Date: day, Time: "13:00"},
	}}
	engine := &fakeEngine{fail: map[string]bool{"bounce@example.com": true}}
	r := hubRegistry(HubDeps{Email: engine, Records: records})

	res := dispatch(r, CmdSendReminders, `{"date":"2025-03-06"}`)
	assert.Equal(t, Ok("Sent 1 of 2 reminders for 2025-03-06"), res)
	require.Len(t, engine.sent, 1)
	assert.Equal(t, "Reminder: Lawn mowing on Thursday 6 March", engine.sent[0].Subject)
	assert.Contains(t, engine.sent[0].Text, "Hi Jane,")
	assert.Contains(t, engine.sent[0].Text, "Address: TR1 1AA")

	res = dispatch(r, CmdSendReminders, `{}`)
	assert.Equal(t, "Sent 1 of 2 reminders for 2025-03-05", res.Message)

	res = dispatch(r, CmdSendReminders, `{"date":"next tuesday"}`)
	assert.Equal(t, KindError, res.Kind)
	assert.Contains(t, res.Message, "expected YYYY-MM-DD")
}

func TestHub_SendOne(t *testing.T) {
	tests := []struct {
		command     string
		data        string
		wantMessage string
		wantSubject string
		wantText    string
	}{
		{
			command:     CmdSendCompletion,
			data:        `{"job":{"client_name":"Jane Smith","client_email":"jane@example.com","service_type":"Hedge trim","notes":"Cuttings removed"}}`,
			wantMessage: "Completion email sent to jane@example.com",
			wantSubject: "Hedge trim is complete",
			wantText:    "Notes from the team: Cuttings removed",
		},
		{
			command:     CmdSendEnquiryReply,
			data:        `{"enquiry":{"name":"Jane","email":"jane@example.com","service":"Patio","reply":"We can visit on Friday."}}`,
			wantMessage: "Enquiry reply sent to jane@example.com",
			wantSubject: "Thanks for your enquiry about Patio",
			wantText:    "We can visit on Friday.",
		},
		{
			command:     CmdSendBookingConfirmation,
			data:        `{"booking":{"name":"Jane","email":"jane@example.com","service":"Lawn mowing","date":"Friday 7 March","time":"10:00","id":55}}`,
			wantMessage: "Booking confirmation sent to jane@example.com",
			wantSubject: "Booking confirmed: Lawn mowing on Friday 7 March",
			wantText:    "Reference: 55",
		},
		{
			command:     CmdSendQuoteEmail,
			data:        `{"enquiry":{"name":"Jane","email":"jane@example.com","service":"Fencing","quote":"450"}}`,
			wantMessage: "Quote sent to jane@example.com",
			wantSubject: "Your quote for Fencing",
			wantText:    "is £450.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			engine := &fakeEngine{}
			res := dispatch(hubRegistry(HubDeps{Email: engine}), tt.command, tt.data)
			assert.Equal(t, Ok("%s", tt.wantMessage), res)
			require.Len(t, engine.sent, 1)
			assert.Equal(t, tt.wantSubject, engine.sent[0].Subject)
			assert.Contains(t, engine.sent[0].Text, tt.wantText)
			assert.Equal(t, "jane@example.com", engine.sent[0].To[0].Email)
		})
	}
}

func TestHub_SendOne_RequiresEmail(t *testing.T) {
	res := dispatch(hubRegistry(HubDeps{Email: &fakeEngine{}}), CmdSendCompletion, `{"job":{"name":"Jane"}}`)
	assert.Equal(t, Result{Kind: KindError, Message: "job.email is required"}, res)

	res = dispatch(hubRegistry(HubDeps{Email: &fakeEngine{fail: map[string]bool{"x@example.com": true}}}),
		CmdSendEnquiryReply, `{"enquiry":{"email":"x@example.com"}}`)
	assert.Equal(t, KindError, res.Kind)
}

func TestHub_RunEmailLifecycle(t *testing.T) {
	records := &fakeRecords{
		jobs: []store.Job{{ID: 9, Client: store.Client{Name: "Jane", Email: "jane@example.com"}, Service: "Lawn mowing"}},
		clients: []store.Client{
			{ID: 1, Name: "Amy", Email: "amy@example.com"},
			{ID: 2, Name: "Ben", Email: "ben@example.com"},
		},
	}
	engine := &fakeEngine{}
	r := hubRegistry(HubDeps{Email: engine, Records: records})

	res := dispatch(r, CmdRunEmailLifecycle, `{}`)
	assert.Equal(t, Ok("Email lifecycle sent 1 emails (1 follow-ups, 0 seasonal)"), res)
	require.Len(t, records.askedDays, 1)
	assert.Equal(t, hubNow.Add(-followUpAfter), records.askedDays[0])

	res = dispatch(r, CmdRunEmailLifecycle, `{"include_seasonal":true}`)
	assert.Equal(t, Ok("Email lifecycle sent 3 emails (1 follow-ups, 2 seasonal)"), res)
	last := engine.sent[len(engine.sent)-1]
	assert.Equal(t, "Spring garden tip", last.Subject)
	assert.Contains(t, last.Text, "This month in the garden:")

	records.err = errors.New("database is locked")
	res = dispatch(r, CmdRunEmailLifecycle, `{}`)
	assert.Equal(t, KindError, res.Kind)
	assert.Contains(t, res.Message, "load completed jobs")
}

func TestHub_RunAgent(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		runner   *fakeRunner
		wantKind Kind
		wantMsg  string
	}{
		{
			name:     "success",
			data:     `{"agent_id":3}`,
			runner:   &fakeRunner{outcome: agents.RunOutcome{AgentID: 3, RunID: 11, Status: agents.RunSuccess, Title: "Spring lawn care"}},
			wantKind: KindOk,
			wantMsg:  "Agent 3 triggered: run 11 success Spring lawn care",
		},
		{
			name:     "string id",
			data:     `{"agent_id":"3"}`,
			runner:   &fakeRunner{outcome: agents.RunOutcome{AgentID: 3, RunID: 12, Status: agents.RunSuccess, Title: "T"}},
			wantKind: KindOk,
			wantMsg:  "Agent 3 triggered: run 12 success T",
		},
		{
			name:     "run failed",
			data:     `{"agent_id":3}`,
			runner:   &fakeRunner{outcome: agents.RunOutcome{AgentID: 3, RunID: 13, Status: agents.RunFailed, Error: "timeout"}},
			wantKind: KindError,
			wantMsg:  "agent 3 run 13 failed: timeout",
		},
		{
			name:     "busy",
			data:     `{"agent_id":3}`,
			runner:   &fakeRunner{err: fmt.Errorf("agent 3: %w", agents.ErrAgentBusy)},
			wantKind: KindUnavailable,
			wantMsg:  "agent 3 is already running",
		},
		{
			name:     "not found",
			data:     `{"agent_id":99}`,
			runner:   &fakeRunner{err: agents.ErrAgentNotFound},
			wantKind: KindError,
			wantMsg:  agents.ErrAgentNotFound.Error(),
		},
		{
			name:     "missing id",
			data:     `{}`,
			runner:   &fakeRunner{},
			wantKind: KindError,
			wantMsg:  "agent_id is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := dispatch(hubRegistry(HubDeps{Agents: tt.runner}), CmdRunAgent, tt.data)
			assert.Equal(t, Result{Kind: tt.wantKind, Message: tt.wantMsg}, res)
		})
	}
}

func TestHub_SendInvoice(t *testing.T) {
	records := &fakeRecords{invoices: map[string]*store.Invoice{
		"GGM-0042": {
			ID:          42,
			Number:      "GGM-0042",
			Client:      store.Client{Name: "Jane Smith", Email: "jane@example.com"},
			AmountPence: 12550,
			Description: "Hedge trim",
			DueOn:       time.Date(2025, 3, 19, 0, 0, 0, 0, time.Local),
		},
	}}
	engine := &fakeEngine{}
	r := hubRegistry(HubDeps{Email: engine, Records: records})

	res := dispatch(r, CmdSendInvoice, `{"invoice_id":"GGM-0042"}`)
	assert.Equal(t, Ok("Invoice GGM-0042 sent to jane@example.com"), res)
	require.Len(t, engine.sent, 1)
	assert.Equal(t, "Invoice GGM-0042 from "+email.Signature, engine.sent[0].Subject)
	assert.Contains(t, engine.sent[0].Text, "Amount due: £125.50")
	assert.Contains(t, engine.sent[0].Text, "Due by: Wednesday 19 March")

	res = dispatch(r, CmdSendInvoice, `{}`)
	assert.Equal(t, Result{Kind: KindError, Message: "invoice_id is required"}, res)

	res = dispatch(r, CmdSendInvoice, `{"invoice_id":"GGM-9999"}`)
	assert.Equal(t, KindError, res.Kind)
	assert.True(t, strings.HasSuffix(res.Message, store.ErrNotFound.Error()))
}

func TestHub_PostToFacebook(t *testing.T) {
	res := dispatch(hubRegistry(HubDeps{Facebook: &fakePublisher{}}), CmdPostToFacebook, `{"title":"T"}`)
	assert.Equal(t, KindUnavailable, res.Kind)

	pub := &fakePublisher{configured: true}
	res = dispatch(hubRegistry(HubDeps{Facebook: pub}), CmdPostToFacebook,
		`{"title":"Spring lawn care","excerpt":"Get ready","tags":["lawn","spring"],"blog_url":"https://example.com/blog/1"}`)
	assert.Equal(t, Ok("Posted to Facebook: 123_456"), res)
	require.Len(t, pub.posts, 1)
	assert.Equal(t, facebook.Post{
		Title:   "Spring lawn care",
		Excerpt: "Get ready",
		Tags:    []string{"lawn", "spring"},
		BlogURL: "https://example.com/blog/1",
	}, pub.posts[0])
}

func TestHub_ForceSync(t *testing.T) {
	calls := 0
	r := hubRegistry(HubDeps{Syncer: SyncFunc(func(ctx context.Context) error {
		calls++
		if calls > 1 {
			return errors.New("provider probe failed")
		}
		return nil
	})})

	assert.Equal(t, Ok("Sync triggered"), dispatch(r, CmdForceSync, ""))
	assert.Equal(t, Result{Kind: KindError, Message: "sync failed: provider probe failed"}, dispatch(r, CmdForceSync, ""))
}

func TestSeason(t *testing.T) {
	tests := map[time.Month]string{
		time.January: "Winter", time.March: "Spring", time.July: "Summer",
		time.October: "Autumn", time.December: "Winter",
	}
	for month, want := range tests {
		assert.Equal(t, want, season(time.Date(2025, month, 1, 0, 0, 0, 0, time.UTC)), month.String())
	}
}
