package session

const (
	noticeAutoPaused       = "auto_paused"
	noticeSessionSaved     = "session_saved"
	noticeSessionSaveError = "session_save_failed"
	noticeNoPatient        = "session_not_saved_no_patient"
	noticeAppointmentError = "appointment_update_failed"
	noticeRecordsRetried   = "session_save_retried"

	messageAutoPaused       = "The session was paused automatically while the screen was in the background. Resume when ready."
	messageSessionSaved     = "Session saved."
	messageSessionSaveError = "Saving the session failed. It is kept on this desk and will be saved with the next session."
	messageNoPatient        = "No patient selected; the session record was not saved."
	messageAppointmentError = "The appointment could not be marked as completed."
	messageRecordsRetried   = "A previously unsaved session has now been saved."
)
