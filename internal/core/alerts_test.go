package core

import (
	"errors"
	"testing"

	"github.com/khlayyel/alertsystem/pkg/models"
)

func deptID(v int64) *models.DepartmentID {
	d := models.DepartmentID(v)
	return &d
}

func TestValidateSendRequest(t *testing.T) {
	valid := func() *models.SendAlertRequest {
		return &models.SendAlertRequest{
			Title:    "Maintenance window",
			Message:  "Systems down Saturday 02:00-04:00",
			Kind:     models.AlertKindInformational,
			UserIDs:  []models.UserID{1, 2},
			Channels: []models.Channel{models.ChannelEmail},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*models.SendAlertRequest)
		wantErr bool
	}{
		{"valid user targeting", func(r *models.SendAlertRequest) {}, false},
		{"valid department targeting", func(r *models.SendAlertRequest) {
			r.UserIDs = nil
			r.DepartmentID = deptID(1)
		}, false},
		{"valid broadcast", func(r *models.SendAlertRequest) {
			r.UserIDs = nil
			r.Broadcast = true
		}, false},
		{"missing title", func(r *models.SendAlertRequest) { r.Title = "  " }, true},
		{"missing message", func(r *models.SendAlertRequest) { r.Message = "" }, true},
		{"invalid kind", func(r *models.SendAlertRequest) { r.Kind = "urgent" }, true},
		{"no target", func(r *models.SendAlertRequest) { r.UserIDs = nil }, true},
		{"two targets", func(r *models.SendAlertRequest) { r.Broadcast = true }, true},
		{"all three targets", func(r *models.SendAlertRequest) {
			r.DepartmentID = deptID(1)
			r.Broadcast = true
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(req)
			err := validateSendRequest(req)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAlertRequest) {
					t.Errorf("validateSendRequest() = %v, want ErrInvalidAlertRequest", err)
				}
				return
			}
			if err != nil {
				t.Errorf("validateSendRequest() unexpected error: %v", err)
			}
		})
	}
}

func TestValidateSendRequestNil(t *testing.T) {
	if err := validateSendRequest(nil); !errors.Is(err, ErrInvalidAlertRequest) {
		t.Errorf("validateSendRequest(nil) = %v, want ErrInvalidAlertRequest", err)
	}
}
