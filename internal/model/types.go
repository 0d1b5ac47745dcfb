package model

import (
	"errors"
	"time"
)

// Status represents collaboration request status
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
	StatusRejected Status = "REJECTED"
	StatusExpired  Status = "EXPIRED"
)

// Terminal reports whether no further transitions are possible from s.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected || s == StatusExpired
}

// CollaborationRequest is one two-party accept/reject workflow. It is owned
// exclusively by the lifecycle service; nothing else mutates it.
type CollaborationRequest struct {
	ID            string    `json:"id"`
	RequesterID   string    `json:"requesterId"`
	RequesterName string    `json:"requesterName"`
	TargetID      string    `json:"targetId"`
	TargetName    string    `json:"targetName"`
	ChannelID     string    `json:"channelId"`
	CategoryID    string    `json:"categoryId"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Error taxonomy for the lifecycle service. Provisioning errors surface to the
// requester as a private message; grant/notify/delete errors degrade or are
// logged only.
var (
	ErrSelfRequest       = errors.New("cannot request collaboration with yourself")
	ErrDuplicateRequest  = errors.New("a collaboration request between these members is already pending")
	ErrCapacityExhausted = errors.New("all collaboration categories are full")
	ErrMemberResolution  = errors.New("member could not be resolved")
	ErrChannelCreation   = errors.New("channel creation failed")
	ErrPermissionGrant   = errors.New("permission grant failed")
	ErrNotFound          = errors.New("no pending request for this channel")
	ErrNotAuthorized     = errors.New("user is not the target of this request")
)
