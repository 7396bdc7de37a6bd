package logger

import (
	"io"
	"os"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	emailRegex  = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	tokenRegex  = regexp.MustCompile(`eyJ[^\s]+`)
	userIDRegex = regexp.MustCompile(`\buser_id\s*=\s*[0-9a-fA-F-]+\b`)
	digestRegex = regexp.MustCompile(`\$2[aby]?\$\d{2}\$[./A-Za-z0-9]{53}`)
)

// base is shared by every Logger so SetLevel and SetOutput apply process-wide.
var base = newBase(os.Stdout)

func newBase(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyMsg:   "message",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyTime:  "time",
		},
	})
	return l
}

// Logger is a centralized structured logger
type Logger struct {
	out *logrus.Logger
}

// New creates a new Logger
func New() *Logger {
	return &Logger{out: base}
}

// SetLevel changes the minimum level for all loggers. Unknown levels keep info.
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)
}

// SetOutput redirects all loggers, mostly useful in tests.
func SetOutput(w io.Writer) {
	base.SetOutput(w)
}

// Anonymize replaces sensitive information in logs (emails, tokens, IDs, password digests)
func Anonymize(s string) string {
	s = emailRegex.ReplaceAllString(s, "[REDACTED_EMAIL]")
	s = tokenRegex.ReplaceAllString(s, "[REDACTED_TOKEN]")
	s = digestRegex.ReplaceAllString(s, "[REDACTED_DIGEST]")
	s = userIDRegex.ReplaceAllString(s, "user_id=[USER_ID]")
	return s
}

func (l *Logger) entry(module string) *logrus.Entry {
	if module == "" {
		return logrus.NewEntry(l.out)
	}
	return l.out.WithField("module", module)
}

// --- Convenient methods ---
func (l *Logger) Info(module, msg string) {
	l.entry(module).Info(Anonymize(msg))
}

func (l *Logger) Debug(module, msg string) {
	l.entry(module).Debug(Anonymize(msg))
}

func (l *Logger) Error(module, msg string, err error) {
	e := l.entry(module)
	if err != nil {
		e = e.WithField("error", Anonymize(err.Error()))
	}
	e.Error(Anonymize(msg))
}

// Fatal logs and exits the process.
func (l *Logger) Fatal(module, msg string, err error) {
	e := l.entry(module)
	if err != nil {
		e = e.WithField("error", Anonymize(err.Error()))
	}
	e.Fatal(Anonymize(msg))
}
