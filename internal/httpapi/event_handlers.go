package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/audience"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/calendar"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/ics"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/scheduling"
)

type eventRequest struct {
	Kind           calendar.Kind `json:"kind"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	Location       string        `json:"location"`
	MeetingLink    string        `json:"meeting_link"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        *time.Time    `json:"end_time"`
	AssignedUserID string        `json:"assigned_user_id"`
	AssignedTeamID string        `json:"assigned_team_id"`
	LeadID         string        `json:"lead_id"`
	OrderID        string        `json:"order_id"`
}

func (req eventRequest) event() (calendar.Event, error) {
	assignee, err := calendar.AssigneeFromColumns(strings.TrimSpace(req.AssignedUserID), strings.TrimSpace(req.AssignedTeamID))
	if err != nil {
		return calendar.Event{}, err
	}
	kind := req.Kind
	if kind == "" {
		kind = calendar.KindMeeting
	}
	return calendar.Event{
		Kind:        kind,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Location:    strings.TrimSpace(req.Location),
		MeetingLink: strings.TrimSpace(req.MeetingLink),
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Assignee:    assignee,
		LeadID:      strings.TrimSpace(req.LeadID),
		OrderID:     strings.TrimSpace(req.OrderID),
	}, nil
}

type createEventRequest struct {
	eventRequest
	Override bool `json:"override"`
}

type recurringRequest struct {
	Event     eventRequest `json:"event"`
	Frequency string       `json:"frequency"`
	Interval  int          `json:"interval"`
	EndDate   string       `json:"end_date"`
	Override  bool         `json:"override"`
}

type recurringResponse struct {
	Outcomes   []scheduling.InstanceOutcome `json:"outcomes"`
	Conflicted int                          `json:"conflicted"`
}

type patchRequest struct {
	Kind           *calendar.Kind `json:"kind"`
	Title          *string        `json:"title"`
	Description    *string        `json:"description"`
	Location       *string        `json:"location"`
	MeetingLink    *string        `json:"meeting_link"`
	StartTime      *time.Time     `json:"start_time"`
	EndTime        *time.Time     `json:"end_time"`
	ClearEndTime   bool           `json:"clear_end_time"`
	AssignedUserID *string        `json:"assigned_user_id"`
	AssignedTeamID *string        `json:"assigned_team_id"`
	LeadID         *string        `json:"lead_id"`
	OrderID        *string        `json:"order_id"`
	Override       bool           `json:"override"`
}

func (req patchRequest) patch() (calendar.Patch, error) {
	p := calendar.Patch{
		Kind:         req.Kind,
		Title:        req.Title,
		Description:  req.Description,
		Location:     req.Location,
		MeetingLink:  req.MeetingLink,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		ClearEndTime: req.ClearEndTime,
		LeadID:       req.LeadID,
		OrderID:      req.OrderID,
	}
	if req.AssignedUserID != nil || req.AssignedTeamID != nil {
		a, err := calendar.AssigneeFromColumns(strings.TrimSpace(deref(req.AssignedUserID)), strings.TrimSpace(deref(req.AssignedTeamID)))
		if err != nil {
			return calendar.Patch{}, err
		}
		p.Assignee = &a
	}
	return p, nil
}

type moveRequest struct {
	StartTime time.Time `json:"start_time"`
}

type conflictCheckRequest struct {
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time"`
	AssignedUserID string     `json:"assigned_user_id"`
	AssignedTeamID string     `json:"assigned_team_id"`
	ExcludeID      string     `json:"exclude_id"`
	TeamID         string     `json:"team_id"`
}

type conflictCheckResponse struct {
	Conflict  bool             `json:"conflict"`
	Colliding []calendar.Event `json:"colliding"`
}

type listEventsResponse struct {
	Items []calendar.Event `json:"items"`
	AsOf  time.Time        `json:"as_of"`
}

func (a *API) listEvents(w http.ResponseWriter, r *http.Request) {
	evs, ok := a.visibleEvents(w, r)
	if !ok {
		return
	}
	if evs == nil {
		evs = []calendar.Event{}
	}
	writeJSON(w, http.StatusOK, listEventsResponse{Items: evs, AsOf: time.Now().UTC()})
}

func (a *API) exportEvents(w http.ResponseWriter, r *http.Request) {
	evs, ok := a.visibleEvents(w, r)
	if !ok {
		return
	}
	actor, _ := actorFrom(w, r)
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="calendar.ics"`)
	if err := ics.Write(w, evs, ics.WithName("crmcal "+actor.OrganizationID)); err != nil {
		logHandlerError(r, "ics export failed", err)
	}
}

func (a *API) visibleEvents(w http.ResponseWriter, r *http.Request) ([]calendar.Event, bool) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return nil, false
	}
	q := r.URL.Query()
	window, err := a.parseWindow(q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return nil, false
	}
	filter := audience.FilterState{
		City:    strings.TrimSpace(q.Get("city")),
		UserIDs: splitParams(q["user_id"]),
		TeamIDs: splitParams(q["team_id"]),
	}
	evs, err := a.coord.VisibleEvents(r.Context(), actor, filter, window)
	if err != nil {
		handleSchedulingError(w, r, err)
		return nil, false
	}
	return evs, true
}

func (a *API) createEvent(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req createEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	ev, err := req.event()
	if err != nil {
		handleSchedulingError(w, r, err)
		return
	}
	saved, err := a.coord.CreateEvent(r.Context(), actor, ev, req.Override)
	if err != nil {
		handleSchedulingError(w, r, err)
		return
	}
	setETag(w, saved)
	w.Header().Set("Location", "/v1/events/"+saved.ID)
	writeJSON(w, http.StatusCreated, saved)
}

func (a *API) createRecurring(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req recurringRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	base, err := req.Event.event()
	if err != nil {
		handleSchedulingError(w, r, err)
		return
	}
	endDate, err := parseInstant(req.EndDate, base.StartTime.Location())
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "end_date: "+err.Error())
		return
	}
	res, err := a.coord.CreateRecurring(r.Context(), actor, calendar.RecurrenceRequest{
		Base:      base,
		Frequency: calendar.Frequency(strings.ToLower(strings.TrimSpace(req.Frequency))),
		Interval:  req.Interval,
		EndDate:   endDate,
	}, req.Override)
	if err != nil {
		handleSchedulingError(w, r, err)
		return
	}
	if res.Outcomes == nil {
		res.Outcomes = []scheduling.InstanceOutcome{}
	}
	writeJSON(w, http.StatusCreated, recurringResponse{Outcomes: res.Outcomes, Conflicted: res.Conflicted()})
}

func (a *API) getEvent(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	ev, err := a.coord.GetEvent(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		handleSchedulingError(w, r, err)
		return
	}
	setETag(w, ev)
	writeJSON(w, http.StatusOK, ev)
}

func (a *API) updateEvent(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req patchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	patch, err := req.patch()
	if err != nil {
		handleSchedulingError(w, r, err)
		return
	}
	version, err := parseIfMatch(r.Header.Get("If-Match"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	id := r.PathValue("id")
	var updated calendar.Event
	if version > 0 {
		updated, err = a.coord.UpdateEventIfVersion(r.Context(), actor, id, version, patch, req.Override)
	} else {
		updated, err = a.coord.UpdateEvent(r.Context(), actor, id, patch, req.Override)
	}
	if err != nil {
		handleSchedulingError(w, r, err)
		return
	}
	setETag(w, updated)
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) deleteEvent(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if err := a.coord.DeleteEvent(r.Context(), actor, r.PathValue("id")); err != nil {
		handleSchedulingError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) moveEvent(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req moveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	if req.StartTime.IsZero() {
		writeError(w, r, http.StatusBadRequest, "start_time is required")
		return
	}
	moved, err := a.coord.MoveEvent(r.Context(), actor, r.PathValue("id"), req.StartTime)
	if err != nil {
		handleSchedulingError(w, r, err)
		return
	}
	setETag(w, moved)
	writeJSON(w, http.StatusOK, moved)
}

func (a *API) checkConflicts(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req conflictCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	if req.StartTime.IsZero() {
		writeError(w, r, http.StatusBadRequest, "start_time is required")
		return
	}
	assignee, err := calendar.AssigneeFromColumns(strings.TrimSpace(req.AssignedUserID), strings.TrimSpace(req.AssignedTeamID))
	if err != nil {
		handleSchedulingError(w, r, err)
		return
	}
	res, err := a.coord.CheckConflicts(r.Context(), actor, calendar.Candidate{
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Assignee:  assignee,
		ExcludeID: strings.TrimSpace(req.ExcludeID),
	}, strings.TrimSpace(req.TeamID))
	if err != nil {
		handleSchedulingError(w, r, err)
		return
	}
	if res.Colliding == nil {
		res.Colliding = []calendar.Event{}
	}
	writeJSON(w, http.StatusOK, conflictCheckResponse{Conflict: res.Conflict, Colliding: res.Colliding})
}

// parseWindow accepts RFC 3339 instants or plain dates. A plain "to" date is
// inclusive of the whole day.
func (a *API) parseWindow(from, to string) (calendar.Range, error) {
	var window calendar.Range
	var err error
	if strings.TrimSpace(from) != "" {
		if window.From, err = parseInstant(from, a.location); err != nil {
			return calendar.Range{}, fmt.Errorf("from: %w", err)
		}
	}
	if to = strings.TrimSpace(to); to != "" {
		if window.To, err = parseInstant(to, a.location); err != nil {
			return calendar.Range{}, fmt.Errorf("to: %w", err)
		}
		if len(to) == len(time.DateOnly) {
			window.To = window.To.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
	}
	if !window.From.IsZero() && !window.To.IsZero() && window.To.Before(window.From) {
		return calendar.Range{}, errors.New("to must not be before from")
	}
	return window, nil
}

func parseInstant(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("is required")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, raw, loc)
	if err != nil {
		return time.Time{}, errors.New("expected RFC 3339 timestamp or YYYY-MM-DD")
	}
	return t, nil
}

func parseIfMatch(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "*" {
		return 0, nil
	}
	raw = strings.TrimPrefix(raw, "W/")
	v, err := strconv.ParseInt(strings.Trim(raw, `"`), 10, 64)
	if err != nil || v <= 0 {
		return 0, errors.New("If-Match must carry an event version")
	}
	return v, nil
}

func setETag(w http.ResponseWriter, ev calendar.Event) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(ev.Version, 10)))
}

func splitParams(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
