package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// HandleMCPValidate reports the outcome of the full MCP pipeline to a
// calling integration server. MCPAuth has already verified the signature
// and registry liveness by the time this runs.
// POST /api/mcp/validate
func (a *App) HandleMCPValidate(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	rec := mcpRecordFromContext(r.Context())

	user, err := a.DB.GetUserByID(rec.UserID)
	if err != nil || user == nil {
		writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid": true,
		"user": map[string]interface{}{
			"id":                   user.ID,
			"email":                user.Email,
			"profile_completed_at": user.ProfileCompletedAt,
		},
		"token": map[string]interface{}{
			"id":         rec.ID,
			"name":       rec.Name,
			"scopes":     rec.Scopes,
			"expires_at": rec.ExpiresAt,
		},
		"scopes": claims.Scopes(),
	})
}

// HandleListHospitals serves the hospital directory to MCP clients.
// GET /api/mcp/hospitals (requires read:data)
func (a *App) HandleListHospitals(w http.ResponseWriter, r *http.Request) {
	hospitals, err := a.DB.ListHospitals()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list hospitals")
		return
	}
	if hospitals == nil {
		hospitals = []*Hospital{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"hospitals": hospitals})
}

// HandleListAppointments serves the caller's appointments.
// GET /api/mcp/appointments (requires read:bookings)
func (a *App) HandleListAppointments(w http.ResponseWriter, r *http.Request) {
	rec := mcpRecordFromContext(r.Context())
	appts, err := a.DB.ListAppointmentsByUser(rec.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list appointments")
		return
	}
	if appts == nil {
		appts = []*Appointment{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"appointments": appts})
}

// HandleCreateAppointment books an appointment for the caller.
// POST /api/mcp/appointments (requires write:bookings)
func (a *App) HandleCreateAppointment(w http.ResponseWriter, r *http.Request) {
	rec := mcpRecordFromContext(r.Context())

	var req struct {
		HospitalID  string `json:"hospital_id"`
		Description string `json:"description"`
		Date        string `json:"date"` // YYYY-MM-DD
		Time        string `json:"time"` // HH:MM
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if req.HospitalID == "" || req.Date == "" || req.Time == "" {
		writeValidationError(w, "Validation error", "hospital_id, date and time are required")
		return
	}

	hospital, err := a.DB.GetHospitalByID(req.HospitalID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Hospital lookup failed")
		return
	}
	if hospital == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Hospital not found")
		return
	}

	appt := &Appointment{
		ID:          uuid.NewString(),
		UserID:      rec.UserID,
		HospitalID:  req.HospitalID,
		Description: req.Description,
		DateTime:    req.Date + "T" + req.Time + ":00",
		CreatedAt:   time.Now(),
	}
	if err := a.DB.CreateAppointment(appt); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create appointment")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"appointment": appt})
}
