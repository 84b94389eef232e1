package pubsub

import (
	"regexp"
	"strings"

	"github.com/syntax-framework/stx/cmn"
)

var errorInvalidTopicName = cmn.ErrOf(
	cmn.ErrValidation,
	"pubsub.topic.name",
	"Not a valid Topic name.", "Name: %s", "Segments: %d",
)

var topicInvalidChars = regexp.MustCompile(`[^A-Za-z0-9\-_:]`)
var topicSeparators = regexp.MustCompile(`:+`)

// NormalizeTopic strips the characters outside `[A-Za-z0-9\-_:]`, collapses runs of `:` and trims the leading and
// trailing ones. A topic is `topic` or `topic:subtopic`, anything else is a validation error.
func NormalizeTopic(name string) (string, error) {
	topic := topicInvalidChars.ReplaceAllString(name, "")
	topic = strings.Trim(topicSeparators.ReplaceAllString(topic, ":"), ":")
	if topic == "" {
		return "", errorInvalidTopicName(name, 0)
	}
	if segments := strings.Count(topic, ":") + 1; segments > 2 {
		return "", errorInvalidTopicName(name, segments)
	}
	return topic, nil
}
