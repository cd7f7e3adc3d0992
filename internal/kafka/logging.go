package kafka

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// NewLogger adapts zerolog to the kafka-go logger interface. kafka-go is chatty
// at info level, so reader and writer progress is logged at debug.
func NewLogger(logger zerolog.Logger, level zerolog.Level) kafka.Logger {
	l := logger.With().Str("component", "kafka-go").Logger()
	return kafka.LoggerFunc(func(msg string, args ...interface{}) {
		l.WithLevel(level).Msgf(msg, args...)
	})
}

// ParseBrokers splits "host1:9092,host2:9092" into a slice.
func ParseBrokers(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
