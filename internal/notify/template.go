// Package notify renders notification templates and resolves who receives them.
package notify

import (
	"html"
	"sort"
	"strings"
	"time"
)

// Placeholder names understood by Render.
const (
	VarLocation     = "location"
	VarStartDate    = "start_date"
	VarEndDate      = "end_date"
	VarStartTime    = "start_time"
	VarEndTime      = "end_time"
	VarDescription  = "description"
	VarJobNumber    = "job_number"
	VarJobName      = "job_name"
	VarResourceName = "resource_name"
)

// Fallbacks used when a booking leaves a field empty.
const (
	FallbackDescription = "No description provided"
	FallbackLocation    = "TBD"
	FallbackJobNumber   = "N/A"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// Variables maps placeholder names to substitution values.
type Variables map[string]string

// Job is the booking data a template can reference.
type Job struct {
	JobName      string
	JobNumber    string
	Description  string
	Location     string
	ResourceName string
	Start        time.Time
	End          time.Time
}

// JobVariables builds the placeholder set for job, formatting times in loc.
func JobVariables(job Job, loc *time.Location) Variables {
	if loc == nil {
		loc = time.UTC
	}
	start := job.Start.In(loc)
	end := job.End.In(loc)
	return Variables{
		VarLocation:     fallback(job.Location, FallbackLocation),
		VarStartDate:    start.Format(dateLayout),
		VarEndDate:      end.Format(dateLayout),
		VarStartTime:    start.Format(timeLayout),
		VarEndTime:      end.Format(timeLayout),
		VarDescription:  fallback(job.Description, FallbackDescription),
		VarJobNumber:    fallback(job.JobNumber, FallbackJobNumber),
		VarJobName:      job.JobName,
		VarResourceName: job.ResourceName,
	}
}

// SampleVariables returns the fixed values used to preview templates.
func SampleVariables() Variables {
	return Variables{
		VarLocation:     "Example Town",
		VarStartDate:    "2025-04-01",
		VarEndDate:      "2025-04-01",
		VarStartTime:    "08:00",
		VarEndTime:      "17:00",
		VarDescription:  "Example job",
		VarJobNumber:    "J0001",
		VarJobName:      "Sample Job",
		VarResourceName: "BT001",
	}
}

// Merge returns a copy of v with overrides applied on top.
func (v Variables) Merge(overrides map[string]string) Variables {
	out := make(Variables, len(v)+len(overrides))
	for k, val := range v {
		out[k] = val
	}
	for k, val := range overrides {
		out[k] = val
	}
	return out
}

// Rendered is a template after substitution.
type Rendered struct {
	Subject string
	Body    string
}

// Render substitutes {name} placeholders in subject and body. When isHTML is
// set, values are escaped before they reach the body; the subject is plain
// text either way. Unknown placeholders are left untouched.
func Render(subject, body string, vars Variables, isHTML bool) Rendered {
	return Rendered{
		Subject: replacer(vars, false).Replace(subject),
		Body:    replacer(vars, isHTML).Replace(body),
	}
}

func replacer(vars Variables, escape bool) *strings.Replacer {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		value := vars[k]
		if escape {
			value = html.EscapeString(value)
		}
		pairs = append(pairs, "{"+k+"}", value)
	}
	return strings.NewReplacer(pairs...)
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}
