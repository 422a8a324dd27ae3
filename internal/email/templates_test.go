package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompose(t *testing.T) {
	jane := Recipient{Name: "Jane Smith", Email: "jane@example.com"}

	tests := []struct {
		name        string
		template    Template
		vars        Vars
		wantSubject string
		wantBody    []string
		notInBody   []string
	}{
		{
			name:        "reminder with time",
			template:    Reminder,
			vars:        Vars{Service: "Lawn mowing", Date: "Monday 12 May", Time: "10:00"},
			wantSubject: "Reminder: Lawn mowing on Monday 12 May",
			wantBody:    []string{"Hi Jane,", "on Monday 12 May at 10:00 for Lawn mowing."},
			notInBody:   []string{"Address:"},
		},
		{
			name:        "reminder with address",
			template:    Reminder,
			vars:        Vars{Date: "Monday", Address: "1 Oak Lane"},
			wantSubject: "Reminder: your garden visit on Monday",
			wantBody:    []string{"Address: 1 Oak Lane"},
		},
		{
			name:        "completion notes",
			template:    Completion,
			vars:        Vars{Service: "Hedge trimming", Notes: "Cuttings removed"},
			wantSubject: "Hedge trimming is complete",
			wantBody:    []string{"We have finished Hedge trimming.", "Notes from the team: Cuttings removed"},
		},
		{
			name:        "enquiry reply default message",
			template:    EnquiryReply,
			wantSubject: "Thanks for your enquiry",
			wantBody:    []string{"We will be in contact shortly"},
		},
		{
			name:        "quote amount",
			template:    Quote,
			vars:        Vars{Service: "Patio cleaning", Amount: "£180.00"},
			wantSubject: "Your quote for Patio cleaning",
			wantBody:    []string{"is £180.00."},
		},
		{
			name:        "invoice",
			template:    Invoice,
			vars:        Vars{Reference: "GGM-0042", Amount: "£125.50", DueDate: "15 April"},
			wantSubject: "Invoice GGM-0042 from Gardners Ground Maintenance",
			wantBody:    []string{"Amount due: £125.50", "Due by: 15 April"},
		},
		{
			name:        "explicit name wins",
			template:    FollowUp,
			vars:        Vars{Name: "Mrs Smith"},
			wantSubject: "How is your garden looking?",
			wantBody:    []string{"Hi Mrs,"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Compose(tt.template, jane, tt.vars)
			require.NoError(t, err)

			assert.Equal(t, tt.wantSubject, msg.Subject)
			assert.Equal(t, []Recipient{jane}, msg.To)
			for _, want := range tt.wantBody {
				assert.Contains(t, msg.Text, want)
			}
			for _, unwanted := range tt.notInBody {
				assert.NotContains(t, msg.Text, unwanted)
			}
			assert.Contains(t, msg.Text, "Kind regards,\n"+Signature)
			assert.NotContains(t, msg.Text, "Subject:")
		})
	}
}

func TestCompose_NoName(t *testing.T) {
	msg, err := Compose(SeasonalTip, Recipient{Email: "a@example.com"}, Vars{Service: "Autumn", Tip: "Rake leaves off the lawn."})
	require.NoError(t, err)
	assert.Equal(t, "Autumn garden tip", msg.Subject)
	assert.Contains(t, msg.Text, "Hi there,")
	assert.Contains(t, msg.Text, "Rake leaves off the lawn.")
}

func TestCompose_UnknownTemplate(t *testing.T) {
	_, err := Compose("flyer", Recipient{}, Vars{})
	assert.Error(t, err)
}
