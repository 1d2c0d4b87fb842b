package models

import (
	"reflect"
	"testing"
)

func TestParseChannels(t *testing.T) {
	tests := []struct {
		name    string
		input   []Channel
		want    []Channel
		wantErr bool
	}{
		{
			name:  "single channel",
			input: []Channel{ChannelEmail},
			want:  []Channel{ChannelEmail},
		},
		{
			name:  "all channels",
			input: []Channel{ChannelEmail, ChannelWhatsApp, ChannelPush},
			want:  []Channel{ChannelEmail, ChannelWhatsApp, ChannelPush},
		},
		{
			name:  "normalizes case and whitespace",
			input: []Channel{" Email ", "WHATSAPP"},
			want:  []Channel{ChannelEmail, ChannelWhatsApp},
		},
		{
			name:  "deduplicates preserving order",
			input: []Channel{ChannelPush, ChannelEmail, ChannelPush},
			want:  []Channel{ChannelPush, ChannelEmail},
		},
		{
			name:    "empty list",
			input:   nil,
			wantErr: true,
		},
		{
			name:    "unknown channel",
			input:   []Channel{ChannelEmail, "sms"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseChannels(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseChannels(%v) expected error, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseChannels(%v) unexpected error: %v", tt.input, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseChannels(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSendStatusCanTransition(t *testing.T) {
	tests := []struct {
		from SendStatus
		to   SendStatus
		want bool
	}{
		{SendStatusPending, SendStatusSending, true},
		{SendStatusPending, SendStatusCancelled, true},
		{SendStatusPending, SendStatusFailed, true},
		{SendStatusPending, SendStatusSent, false},
		{SendStatusSending, SendStatusSent, true},
		{SendStatusSending, SendStatusFailed, true},
		{SendStatusSending, SendStatusCancelled, false},
		{SendStatusSent, SendStatusPending, false},
		{SendStatusSent, SendStatusSending, false},
		{SendStatusSent, SendStatusFailed, true},
		{SendStatusFailed, SendStatusSending, false},
		{SendStatusFailed, SendStatusSent, false},
		{SendStatusCancelled, SendStatusSending, false},
		{SendStatusCancelled, SendStatusSent, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestAlertKindValid(t *testing.T) {
	if !AlertKindMandatory.Valid() {
		t.Error("mandatory should be valid")
	}
	if !AlertKindInformational.Valid() {
		t.Error("informational should be valid")
	}
	if AlertKind("urgent").Valid() {
		t.Error("unknown kind should be invalid")
	}
}
