package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ggmhub/hub/internal/agents"
	"github.com/ggmhub/hub/internal/content"
	"github.com/ggmhub/hub/internal/email"
	"github.com/ggmhub/hub/internal/facebook"
	"github.com/ggmhub/hub/internal/logger"
	"github.com/ggmhub/hub/internal/notify"
	"github.com/ggmhub/hub/internal/store"
)

// Hub command names.
const (
	CmdGenerateBlog            = "generate_blog"
	CmdGenerateNewsletter      = "generate_newsletter"
	CmdSendReminders           = "send_reminders"
	CmdSendCompletion          = "send_completion"
	CmdSendEnquiryReply        = "send_enquiry_reply"
	CmdSendBookingConfirmation = "send_booking_confirmation"
	CmdSendQuoteEmail          = "send_quote_email"
	CmdRunEmailLifecycle       = "run_email_lifecycle"
	CmdForceSync               = "force_sync"
	CmdRunAgent                = "run_agent"
	CmdSendInvoice             = "send_invoice"
	CmdPostToFacebook          = "post_to_facebook"
)

// followUpAfter is how long after a completed job the follow-up is sent.
const followUpAfter = 3 * 24 * time.Hour

type DraftSaver interface {
	SaveDraftArtifact(ctx context.Context, draft agents.Draft) (int64, error)
}

// Records is the customer data the email commands read.
type Records interface {
	BookingsOn(ctx context.Context, date time.Time) ([]store.Booking, error)
	JobsCompletedOn(ctx context.Context, date time.Time) ([]store.Job, error)
	MarketingClients(ctx context.Context) ([]store.Client, error)
	GetInvoice(ctx context.Context, ref string) (*store.Invoice, error)
}

type AgentRunner interface {
	RunNow(ctx context.Context, agentID int64) (agents.RunOutcome, error)
}

type Publisher interface {
	Configured() bool
	Publish(ctx context.Context, post facebook.Post) (string, error)
}

type Syncer interface {
	Sync(ctx context.Context) error
}

// SyncFunc adapts a function to Syncer.
type SyncFunc func(ctx context.Context) error

func (f SyncFunc) Sync(ctx context.Context) error { return f(ctx) }

// HubDeps are the collaborators of the hub handlers. Nil fields make the
// commands that need them report KindUnavailable.
type HubDeps struct {
	Generator content.Generator
	Drafts    DraftSaver
	Records   Records
	Email     email.Engine
	Agents    AgentRunner
	Facebook  Publisher
	Syncer    Syncer
	Notifier  notify.Notifier
	Logger    *logger.Logger
	Now       func() time.Time
}

type hubHandlers struct {
	HubDeps
}

// RegisterHub installs the hub's command set on r.
func RegisterHub(r *Registry, deps HubDeps) {
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	deps.Logger = deps.Logger.Component("hub_commands")
	if deps.Now == nil {
		deps.Now = time.Now
	}
	h := &hubHandlers{deps}

	r.Register(CmdGenerateBlog, h.generateBlog)
	r.Register(CmdGenerateNewsletter, h.generateNewsletter)
	r.Register(CmdSendReminders, h.sendReminders)
	r.Register(CmdSendCompletion, h.sendCompletion)
	r.Register(CmdSendEnquiryReply, h.sendEnquiryReply)
	r.Register(CmdSendBookingConfirmation, h.sendBookingConfirmation)
	r.Register(CmdSendQuoteEmail, h.sendQuoteEmail)
	r.Register(CmdRunEmailLifecycle, h.runEmailLifecycle)
	r.Register(CmdForceSync, forceSync(deps.Syncer))
	r.Register(CmdRunAgent, h.runAgent)
	r.Register(CmdSendInvoice, h.sendInvoice)
	r.Register(CmdPostToFacebook, h.postToFacebook)
}

func (h *hubHandlers) generateBlog(ctx context.Context, req Request) (Result, error) {
	if h.Generator == nil {
		return Unavailable("no content generator configured"), nil
	}
	topic := req.Payload.String("topic")
	if topic == "" {
		topic = content.SeasonalTopic(h.Now())
	}
	opts := content.BlogOptions{
		Persona:  req.Payload.String("persona"),
		Keywords: req.Payload.Strings("keywords"),
	}
	if n, ok := req.Payload.Int("word_count"); ok {
		opts.Words = int(n)
	}

	post := h.Generator.GenerateBlogPost(ctx, topic, opts)
	if !post.OK() {
		return Failed(errors.New(post.Error)), nil
	}

	if h.Drafts != nil {
		if _, err := h.Drafts.SaveDraftArtifact(ctx, agents.Draft{
			Kind:    agents.DraftBlog,
			Title:   post.Title,
			Body:    post.Content,
			Excerpt: post.Excerpt,
			Persona: post.Persona,
		}); err != nil {
			return Result{}, fmt.Errorf("save blog draft: %w", err)
		}
	}

	if err := h.Notifier.Notify(ctx, "Blog draft ready for approval", post.Title+"\n\n"+post.Excerpt); err != nil {
		h.Logger.DebugCtx(ctx, "approval notification failed", logger.Field{Key: "error", Value: err.Error()})
	}
	return Ok("Blog draft saved: %s (approval requested)", post.Title), nil
}

func (h *hubHandlers) generateNewsletter(ctx context.Context, req Request) (Result, error) {
	if h.Generator == nil {
		return Unavailable("no content generator configured"), nil
	}
	opts := content.NewsletterOptions{
		Persona:  req.Payload.String("persona"),
		Audience: req.Payload.String("audience"),
		Month:    h.Now().Format("January 2006"),
	}
	if opts.Audience == "" {
		opts.Audience = "all"
	}

	letter := h.Generator.GenerateNewsletter(ctx, req.Payload.String("template"), opts)
	if !letter.OK() {
		return Failed(errors.New(letter.Error)), nil
	}

	if h.Drafts != nil {
		if _, err := h.Drafts.SaveDraftArtifact(ctx, agents.Draft{
			Kind:     agents.DraftNewsletter,
			Title:    letter.Subject,
			Body:     letter.Body,
			Persona:  opts.Persona,
			Audience: opts.Audience,
		}); err != nil {
			return Result{}, fmt.Errorf("save newsletter draft: %w", err)
		}
	}
	return Ok("Newsletter draft stored for review: %s (%s)", letter.Subject, opts.Audience), nil
}

func (h *hubHandlers) sendReminders(ctx context.Context, req Request) (Result, error) {
	if h.Email == nil {
		return Unavailable("email engine not available"), nil
	}
	if h.Records == nil {
		return Unavailable("no booking records configured"), nil
	}

	day := h.Now()
	if s := req.Payload.String("date"); s != "" {
		parsed, err := time.ParseInLocation(dateLayout, s, time.Local)
		if err != nil {
			return Result{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
		}
		day = parsed
	}

	bookings, err := h.Records.BookingsOn(ctx, day)
	if err != nil {
		return Result{}, fmt.Errorf("load bookings: %w", err)
	}

	sent := 0
	for _, b := range bookings {
		msg, err := email.Compose(email.Reminder, recipient(b.Client), email.Vars{
			Service: b.Service,
			Date:    humanDate(b.Date),
			Time:    b.Time,
			Address: b.Client.Postcode,
		})
		if err != nil {
			return Result{}, err
		}
		if h.deliver(ctx, msg, logger.Field{Key: "booking_id", Value: b.ID}) {
			sent++
		}
	}
	return Ok("Sent %d of %d reminders for %s", sent, len(bookings), day.Format(dateLayout)), nil
}

func (h *hubHandlers) sendCompletion(ctx context.Context, req Request) (Result, error) {
	job := req.Payload.Object("job")
	return h.sendOne(ctx, "job", job, email.Completion, email.Vars{
		Service: job.First("service", "service_type"),
		Date:    job.First("date", "completed_on"),
		Notes:   job.String("notes"),
	}, "Completion email sent to %s")
}

func (h *hubHandlers) sendEnquiryReply(ctx context.Context, req Request) (Result, error) {
	enquiry := req.Payload.Object("enquiry")
	return h.sendOne(ctx, "enquiry", enquiry, email.EnquiryReply, email.Vars{
		Service: enquiry.First("service", "service_type"),
		Message: enquiry.First("reply", "response"),
	}, "Enquiry reply sent to %s")
}

func (h *hubHandlers) sendBookingConfirmation(ctx context.Context, req Request) (Result, error) {
	booking := req.Payload.Object("booking")
	return h.sendOne(ctx, "booking", booking, email.BookingConfirmation, email.Vars{
		Service:   booking.First("service", "service_type"),
		Date:      booking.String("date"),
		Time:      booking.String("time"),
		Reference: booking.First("reference", "id"),
	}, "Booking confirmation sent to %s")
}

func (h *hubHandlers) sendQuoteEmail(ctx context.Context, req Request) (Result, error) {
	enquiry := req.Payload.Object("enquiry")
	amount := enquiry.First("quote", "amount", "price")
	if amount != "" && !strings.HasPrefix(amount, "£") {
		amount = "£" + amount
	}
	return h.sendOne(ctx, "enquiry", enquiry, email.Quote, email.Vars{
		Service: enquiry.First("service", "service_type"),
		Amount:  amount,
		Message: enquiry.First("message", "notes"),
	}, "Quote sent to %s")
}

// sendOne sends a template to the person described by obj.
func (h *hubHandlers) sendOne(ctx context.Context, field string, obj Payload, t email.Template, vars email.Vars, done string) (Result, error) {
	if h.Email == nil {
		return Unavailable("email engine not available"), nil
	}
	to := email.Recipient{
		Name:  obj.First("name", "client_name", "customer_name"),
		Email: obj.First("email", "client_email", "customer_email"),
	}
	if to.Email == "" {
		return Result{}, fmt.Errorf("%s.email is required", field)
	}

	msg, err := email.Compose(t, to, vars)
	if err != nil {
		return Result{}, err
	}
	if err := h.Email.Send(ctx, msg); err != nil {
		return Result{}, err
	}
	return Ok(done, to.Email), nil
}

func (h *hubHandlers) runEmailLifecycle(ctx context.Context, req Request) (Result, error) {
	if h.Email == nil {
		return Unavailable("email engine not available"), nil
	}
	if h.Records == nil {
		return Unavailable("no customer records configured"), nil
	}

	now := h.Now()
	jobs, err := h.Records.JobsCompletedOn(ctx, now.Add(-followUpAfter))
	if err != nil {
		return Result{}, fmt.Errorf("load completed jobs: %w", err)
	}

	followUps := 0
	for _, j := range jobs {
		msg, err := email.Compose(email.FollowUp, recipient(j.Client), email.Vars{Service: j.Service})
		if err != nil {
			return Result{}, err
		}
		if h.deliver(ctx, msg, logger.Field{Key: "job_id", Value: j.ID}) {
			followUps++
		}
	}

	seasonal := 0
	if req.Payload.Bool("include_seasonal") {
		clients, err := h.Records.MarketingClients(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("load marketing clients: %w", err)
		}
		vars := email.Vars{
			Service: season(now),
			Tip:     fmt.Sprintf("This month in the garden: %s.", content.SeasonalTopic(now)),
		}
		for _, c := range clients {
			msg, err := email.Compose(email.SeasonalTip, recipient(c), vars)
			if err != nil {
				return Result{}, err
			}
			if h.deliver(ctx, msg, logger.Field{Key: "client_id", Value: c.ID}) {
				seasonal++
			}
		}
	}
	return Ok("Email lifecycle sent %d emails (%d follow-ups, %d seasonal)", followUps+seasonal, followUps, seasonal), nil
}

func (h *hubHandlers) runAgent(ctx context.Context, req Request) (Result, error) {
	if h.Agents == nil {
		return Unavailable("agent scheduler not running on this node"), nil
	}
	id, ok := req.Payload.Int("agent_id")
	if !ok {
		return Result{}, errors.New("agent_id is required")
	}

	outcome, err := h.Agents.RunNow(ctx, id)
	if errors.Is(err, agents.ErrAgentBusy) {
		return Unavailable("agent %d is already running", id), nil
	}
	if err != nil {
		return Result{}, err
	}
	if outcome.Status == agents.RunFailed {
		return Failed(fmt.Errorf("agent %d run %d failed: %s", id, outcome.RunID, outcome.Error)), nil
	}
	return Ok("Agent %d triggered: run %d %s %s", id, outcome.RunID, outcome.Status, outcome.Title), nil
}

func (h *hubHandlers) sendInvoice(ctx context.Context, req Request) (Result, error) {
	if h.Email == nil {
		return Unavailable("email engine not available"), nil
	}
	if h.Records == nil {
		return Unavailable("no invoice records configured"), nil
	}
	ref := req.Payload.First("invoice_id", "invoice_number")
	if ref == "" {
		return Result{}, errors.New("invoice_id is required")
	}

	inv, err := h.Records.GetInvoice(ctx, ref)
	if err != nil {
		return Result{}, err
	}
	msg, err := email.Compose(email.Invoice, recipient(inv.Client), email.Vars{
		Service:   inv.Description,
		Amount:    inv.Amount(),
		Reference: inv.Number,
		DueDate:   humanDate(inv.DueOn),
	})
	if err != nil {
		return Result{}, err
	}
	if err := h.Email.Send(ctx, msg); err != nil {
		return Result{}, err
	}
	return Ok("Invoice %s sent to %s", inv.Number, inv.Client.Email), nil
}

func (h *hubHandlers) postToFacebook(ctx context.Context, req Request) (Result, error) {
	if h.Facebook == nil || !h.Facebook.Configured() {
		return Unavailable("Facebook not configured: set facebook.page_id and facebook.access_token"), nil
	}
	id, err := h.Facebook.Publish(ctx, facebook.Post{
		Title:    req.Payload.String("title"),
		Excerpt:  req.Payload.String("excerpt"),
		ImageURL: req.Payload.String("image_url"),
		Tags:     req.Payload.Strings("tags"),
		BlogURL:  req.Payload.String("blog_url"),
	})
	if err != nil {
		return Result{}, err
	}
	return Ok("Posted to Facebook: %s", id), nil
}

func forceSync(s Syncer) Handler {
	return func(ctx context.Context, req Request) (Result, error) {
		if s == nil {
			return Unavailable("no sync configured on this node"), nil
		}
		if err := s.Sync(ctx); err != nil {
			return Result{}, fmt.Errorf("sync failed: %w", err)
		}
		return Ok("Sync triggered"), nil
	}
}

// deliver sends msg and reports success. Per-recipient failures are logged
// so one bad address does not stop a batch.
func (h *hubHandlers) deliver(ctx context.Context, msg email.Message, field logger.Field) bool {
	if err := h.Email.Send(ctx, msg); err != nil {
		h.Logger.WarnCtx(ctx, "email not sent", field,
			logger.Field{Key: "subject", Value: msg.Subject},
			logger.Field{Key: "error", Value: err.Error()})
		return false
	}
	return true
}

const dateLayout = "2006-01-02"

func recipient(c store.Client) email.Recipient {
	return email.Recipient{Name: c.Name, Email: c.Email}
}

func humanDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("Monday 2 January")
}

func season(t time.Time) string {
	switch t.Month() {
	case time.March, time.April, time.May:
		return "Spring"
	case time.June, time.July, time.August:
		return "Summer"
	case time.September, time.October, time.November:
		return "Autumn"
	default:
		return "Winter"
	}
}
