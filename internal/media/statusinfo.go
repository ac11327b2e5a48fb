package media

// StatusInfo is a point-in-time projection of a download sent to clients as a
// progress event. It is never persisted.
type StatusInfo struct {
	Key        string    `json:"key"`
	Title      string    `json:"title"`
	ClientID   string    `json:"clientId"`
	MediaID    string    `json:"mediaId"`
	Status     Status    `json:"status"`
	Progress   *Progress `json:"progress,omitempty"`
	FilesizeHR string    `json:"filesizeHr,omitempty"`
}

// NewStatusInfo projects the current state of d.
func NewStatusInfo(d *Download) StatusInfo {
	info := StatusInfo{
		Key:        d.Key(),
		Title:      d.Title,
		ClientID:   d.ClientID,
		MediaID:    d.MediaID,
		Status:     d.Status,
		FilesizeHR: d.FilesizeHR,
	}
	if d.Status != StatusFailed {
		p := d.Progress
		info.Progress = &p
	}
	return info
}

// WithProgress returns a copy of the event carrying p.
func (s StatusInfo) WithProgress(p Progress) StatusInfo {
	s.Progress = &p
	return s
}
