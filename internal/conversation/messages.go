package conversation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/formrelay/api/schemas"
	"github.com/xkilldash9x/formrelay/internal/service"
	"github.com/xkilldash9x/formrelay/internal/weights"
)

const (
	msgGreeting        = "Hi! Send me a link to a Yandex form."
	msgReading         = "Thanks for the link! Reading the form..."
	msgFormReceived    = "Form data received:"
	msgNextSteps       = "Set answer weights with /weight.\nStart filling with /run."
	msgNoForm          = "Send me a link to a form first."
	msgNoQuestions     = "This form has no questions."
	msgAskQuestion     = "Choose the number of the question to weight:"
	msgAskWeights      = "Enter weights for the options separated by commas (for example: 9,1,1,1). Weights must be between 0 and 10."
	msgAskRepetitions  = "How many times should the form be filled in?"
	msgStarting        = "Starting to fill the form...\nDo not change the form until the process completes!"
	msgBusy            = "The form is still being filled in. I will report when it is done."
	msgUnknown         = "Send me a Yandex form link, or use /weight and /run."
	msgFormUnreadable  = "Could not read the form. Check the link and try again."
	msgSubmitFailed    = "Could not submit the form."
	msgInternalFailure = "Something went wrong while processing the form."
)

// describeForm renders the title followed by numbered questions and their options.
func describeForm(form *schemas.Form) string {
	var b strings.Builder
	b.WriteString(form.Title)
	b.WriteString("\n\n")
	for i, q := range form.Questions {
		fmt.Fprintf(&b, "%d) %s:\n", i+1, strings.TrimSpace(q.Text))
		for _, opt := range q.Options {
			fmt.Fprintf(&b, "- %s\n", opt)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func listQuestions(form *schemas.Form) string {
	lines := make([]string, 0, len(form.Questions))
	for i, q := range form.Questions {
		lines = append(lines, fmt.Sprintf("%d) %s", i+1, strings.TrimSpace(q.Text)))
	}
	return msgAskQuestion + "\n\n" + strings.Join(lines, "\n")
}

func weightsSaved(questionIndex int) string {
	return fmt.Sprintf("Weights saved for question %d.\n%s", questionIndex+1, msgNextSteps)
}

func fillCompleted(n int) string {
	return fmt.Sprintf("The form was filled in %d time(s).", n)
}

// failureMessage maps err onto one of the user-facing failure classes.
func failureMessage(err error) string {
	switch service.Classify(err) {
	case service.FailureInvalidInput:
		var ve *weights.ValidationError
		if errors.As(err, &ve) {
			return ve.Message + ". Try again."
		}
		msg := err.Error()
		if i := strings.LastIndex(msg, service.ErrInvalidInput.Error()+": "); i >= 0 {
			msg = msg[i+len(service.ErrInvalidInput.Error())+2:]
		}
		return msg + ". Try again."
	case service.FailureFormUnreadable:
		return msgFormUnreadable
	case service.FailureSubmit:
		return msgSubmitFailed
	case service.FailureFormNotFound:
		return msgNoForm
	}
	return msgInternalFailure
}
