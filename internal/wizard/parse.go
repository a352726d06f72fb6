package wizard

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sudo-init-do/circle/internal/session"
)

// hint is a parse failure worded for the participant.
type hint string

func (h hint) Error() string { return string(h) }

func hintf(format string, args ...any) error { return hint(fmt.Sprintf(format, args...)) }

// ParseFunc turns free text into a stored value. Its error text is shown to
// the participant as the correction hint.
type ParseFunc func(text string) (session.Value, error)

// Line accepts one line of text between min and max characters.
func Line(min, max int) ParseFunc {
	return func(text string) (session.Value, error) {
		text = strings.TrimSpace(text)
		if strings.ContainsAny(text, "\r\n") {
			return session.Value{}, hintf("Please send a single line.")
		}
		n := utf8.RuneCountInString(text)
		if n < min {
			return session.Value{}, hintf("Please enter at least %d characters.", min)
		}
		if n > max {
			return session.Value{}, hintf("Please keep it to %d characters or fewer.", max)
		}
		return session.Text(text), nil
	}
}

// Integer accepts a whole number in [min, max].
func Integer(min, max int) ParseFunc {
	return func(text string) (session.Value, error) {
		n, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			return session.Value{}, hintf("Please enter a number.")
		}
		if n < min || n > max {
			return session.Value{}, hintf("Please enter a number from %d to %d.", min, max)
		}
		return session.Text(strconv.Itoa(n)), nil
	}
}

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9._]{1,30}$`)

// SocialHandle accepts "-" for none or a handle, with a leading @ removed.
func SocialHandle(text string) (session.Value, error) {
	text = strings.TrimSpace(text)
	if text == "-" {
		return session.Text(""), nil
	}
	text = strings.TrimPrefix(text, "@")
	if !handlePattern.MatchString(text) {
		return session.Value{}, hintf("Send a handle like @name (letters, digits, dots, underscores) or - to skip.")
	}
	return session.Text(text), nil
}
