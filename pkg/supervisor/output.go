package supervisor

import (
	"encoding/json"
	"fmt"
	"regexp"
)

var (
	readyStderrRegexp = regexp.MustCompile(`(?i)MinIO Object Storage Server`)
	readyStdoutRegexp = regexp.MustCompile(`(?i)waiting for connections`)

	portInUseRegexp     = regexp.MustCompile(`(?i)address already in use`)
	exceptionRegexp     = regexp.MustCompile(`exception in initAndListen: \(([^)]+)\): (.*)`)
	dbExceptionJSONLine = regexp.MustCompile(`DBException in initAndListen,`)
	libcurlRegexp       = regexp.MustCompile(`CURL_OPENSSL_[34] not found`)
	missingLibRegexp    = regexp.MustCompile(`\b(lib[^:]+): cannot open shared object`)
	abortingRegexp      = regexp.MustCompile(`\*\*\*aborting after`)
	replStateRegexp     = regexp.MustCompile(`transition to (\w+) from (\w+)`)
	replPrimaryRegexp   = regexp.MustCompile(`transition to primary complete; database writes are now permitted`)
)

// outputEvent is what a single line of stdout/stderr resolved to.
type outputEvent struct {
	ready     bool
	fatal     error
	replState string
	primary   bool
}

// classifyLine scans one line of output for the readiness and fatal
// signals this component watches for. source is "stdout" or "stderr",
// since the ready regexes are source-specific.
func classifyLine(source, line string) outputEvent {
	if source == "stderr" && readyStderrRegexp.MatchString(line) {
		return outputEvent{ready: true}
	}
	if source == "stdout" && readyStdoutRegexp.MatchString(line) {
		return outputEvent{ready: true}
	}

	if portInUseRegexp.MatchString(line) {
		return outputEvent{fatal: &StdoutInstanceError{Message: "Port already in use"}}
	}

	if dbExceptionJSONLine.MatchString(line) {
		if msg, ok := extractJSONError(line); ok {
			return outputEvent{fatal: &StdoutInstanceError{Message: msg}}
		}
	}

	if m := exceptionRegexp.FindStringSubmatch(line); m != nil {
		return outputEvent{fatal: &StdoutInstanceError{Message: fmt.Sprintf("%s: %s", m[1], m[2])}}
	}

	if libcurlRegexp.MatchString(line) {
		return outputEvent{fatal: &StdoutInstanceError{Message: line}}
	}

	if m := missingLibRegexp.FindStringSubmatch(line); m != nil {
		return outputEvent{fatal: &StdoutInstanceError{Message: fmt.Sprintf("missing shared library %s", m[1])}}
	}

	if abortingRegexp.MatchString(line) {
		return outputEvent{fatal: &StdoutInstanceError{Message: line}}
	}

	if m := replStateRegexp.FindStringSubmatch(line); m != nil {
		return outputEvent{replState: m[1]}
	}

	if replPrimaryRegexp.MatchString(line) {
		return outputEvent{primary: true}
	}

	return outputEvent{}
}

// extractJSONError pulls attr.error out of a JSON-formatted
// DBException log line.
func extractJSONError(line string) (string, bool) {
	var parsed struct {
		Attr struct {
			Error string `json:"error"`
		} `json:"attr"`
	}
	if err := json.Unmarshal([]byte(line), &parsed); err != nil {
		return "", false
	}
	if parsed.Attr.Error == "" {
		return "", false
	}
	return parsed.Attr.Error, true
}

// StdoutInstanceError is a fatal condition detected by scanning the
// child process's stdout/stderr rather than from its exit status.
type StdoutInstanceError struct {
	Message string
}

func (e *StdoutInstanceError) Error() string {
	return e.Message
}
