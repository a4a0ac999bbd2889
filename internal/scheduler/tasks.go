package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskLeadFollowUpDue = "leads.follow_up.due"

type LeadFollowUpPayload struct {
	FollowUpID    string `json:"followUpId"`
	TenantID      string `json:"tenantId"`
	LeadID        string `json:"leadId"`
	AppointmentID string `json:"appointmentId,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

func NewLeadFollowUpTask(payload LeadFollowUpPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLeadFollowUpDue, data), nil
}

func ParseLeadFollowUpPayload(task *asynq.Task) (LeadFollowUpPayload, error) {
	var payload LeadFollowUpPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return LeadFollowUpPayload{}, err
	}
	return payload, nil
}
