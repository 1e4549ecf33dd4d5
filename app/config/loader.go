package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath    = "config/appsettings.yaml"
	alternatePath  = "config/appsettings.yml"
	envValuePrefix = "env:"
)

var ErrNoInstances = errors.New("no valid instances configured")

// InstanceError reports why one instance was rejected.
type InstanceError struct {
	Index int
	ID    string
	Err   error
}

func (e *InstanceError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("instance #%d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("instance %q: %v", e.ID, e.Err)
}

func (e *InstanceError) Unwrap() error {
	return e.Err
}

// Result holds the accepted instances and the rejected ones.
type Result struct {
	Instances []*Instance
	Rejected  []*InstanceError
}

type Loader struct {
	path      string
	lookupEnv func(string) (string, bool)
	validate  *validator.Validate
}

func NewLoader(path string) *Loader {
	return &Loader{
		path:      path,
		lookupEnv: os.LookupEnv,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// ResolvePath picks the configuration file: an explicit path wins, then the
// default .yaml file, then its .yml twin.
func ResolvePath(explicit string) string {
	if explicit != "" && explicit != DefaultPath {
		return explicit
	}
	if _, err := os.Stat(DefaultPath); err == nil {
		return DefaultPath
	}
	if _, err := os.Stat(alternatePath); err == nil {
		return alternatePath
	}
	return DefaultPath
}

// Load reads the file and validates each instance on its own. An invalid
// instance is reported in Result.Rejected and does not block the others.
func (l *Loader) Load() (*Result, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	result := &Result{}
	seen := make(map[string]bool)

	for idx := range file.Instances {
		instance := &file.Instances[idx]
		setDefaults(instance)

		if err := l.prepare(instance, seen); err != nil {
			result.Rejected = append(result.Rejected, &InstanceError{Index: idx, ID: instance.ID, Err: err})
			continue
		}

		seen[instance.ID] = true
		result.Instances = append(result.Instances, instance)
		slog.Debug("Loaded instance configuration", "instance", instance.ID, "feeds", instance.FeedCount())
	}

	if len(result.Instances) == 0 {
		return result, ErrNoInstances
	}

	return result, nil
}

func (l *Loader) prepare(instance *Instance, seen map[string]bool) error {
	instance.ID = strings.TrimSpace(instance.ID)
	instance.RSSURLs = trimAll(instance.RSSURLs)
	instance.YoutubeURLs = trimAll(instance.YoutubeURLs)
	if seen[instance.ID] {
		return fmt.Errorf("duplicate instance id")
	}

	webhook, err := l.resolveEnv(instance.DiscordWebhookURL)
	if err != nil {
		return err
	}
	instance.DiscordWebhookURL = webhook

	if err := l.validate.Struct(instance); err != nil {
		return describeValidation(err)
	}

	if instance.FeedCount() == 0 {
		return fmt.Errorf("at least one rss_urls or youtube_urls entry is required")
	}

	return nil
}

// resolveEnv expands an "env:NAME" value from the environment.
func (l *Loader) resolveEnv(value string) (string, error) {
	value = strings.TrimSpace(value)
	name, ok := strings.CutPrefix(value, envValuePrefix)
	if !ok {
		return value, nil
	}

	name = strings.TrimSpace(name)
	resolved, found := l.lookupEnv(name)
	if !found || strings.TrimSpace(resolved) == "" {
		return "", fmt.Errorf("environment variable %s is not set", name)
	}
	return strings.TrimSpace(resolved), nil
}

func setDefaults(instance *Instance) {
	if instance.RSSCheckIntervalMinutes == 0 {
		instance.RSSCheckIntervalMinutes = DefaultCheckIntervalMinutes
	}
	if instance.ConcurrentRequests == 0 {
		instance.ConcurrentRequests = DefaultConcurrentRequests
	}
	if instance.DescriptionLimit == 0 {
		instance.DescriptionLimit = DefaultDescriptionLimit
	}
	if instance.ImageFetchMode == "" {
		instance.ImageFetchMode = DefaultImageFetchMode
	}
	if instance.Username == "" {
		instance.Username = DefaultUsername
	}
	if instance.Color == 0 {
		instance.Color = DefaultColor
	}
}

func describeValidation(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, ", "))
}

func trimAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.TrimSpace(v)
	}
	return out
}
