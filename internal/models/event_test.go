package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func record(level ApprovalLevel, status ApprovalStatus, archived bool) ApprovalRecord {
	return ApprovalRecord{Level: level, Status: status, Archived: archived}
}

func TestDeriveEventStatus(t *testing.T) {
	cases := []struct {
		name      string
		approvals []ApprovalRecord
		want      EventStatus
	}{
		{
			name: "no records means draft",
			want: EventStatusDraft,
		},
		{
			name:      "pending faculty review",
			approvals: []ApprovalRecord{record(ApprovalLevelFaculty, ApprovalStatusPending, false)},
			want:      EventStatusFacultyPending,
		},
		{
			name:      "faculty rejection",
			approvals: []ApprovalRecord{record(ApprovalLevelFaculty, ApprovalStatusRejected, false)},
			want:      EventStatusRejected,
		},
		{
			name: "faculty approved opens admin stage",
			approvals: []ApprovalRecord{
				record(ApprovalLevelFaculty, ApprovalStatusApproved, false),
				record(ApprovalLevelAdmin, ApprovalStatusPending, false),
			},
			want: EventStatusAdminPending,
		},
		{
			name: "admin rejection",
			approvals: []ApprovalRecord{
				record(ApprovalLevelFaculty, ApprovalStatusApproved, false),
				record(ApprovalLevelAdmin, ApprovalStatusRejected, false),
			},
			want: EventStatusRejected,
		},
		{
			name: "both approvals",
			approvals: []ApprovalRecord{
				record(ApprovalLevelFaculty, ApprovalStatusApproved, false),
				record(ApprovalLevelAdmin, ApprovalStatusApproved, false),
			},
			want: EventStatusApproved,
		},
		{
			name: "archived trail is ignored after resubmit",
			approvals: []ApprovalRecord{
				record(ApprovalLevelFaculty, ApprovalStatusRejected, true),
				record(ApprovalLevelFaculty, ApprovalStatusPending, false),
			},
			want: EventStatusFacultyPending,
		},
		{
			name: "fully archived trail reads as draft",
			approvals: []ApprovalRecord{
				record(ApprovalLevelFaculty, ApprovalStatusApproved, true),
				record(ApprovalLevelAdmin, ApprovalStatusRejected, true),
			},
			want: EventStatusDraft,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DeriveEventStatus(tc.approvals))
		})
	}
}
