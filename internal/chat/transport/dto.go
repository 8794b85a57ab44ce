// Package transport defines request and response shapes for the chat API.
package transport

import (
	"time"

	"github.com/google/uuid"

	"careops_backend/internal/chat/repository"
)

type PostMessageRequest struct {
	Body string `json:"body" validate:"required,max=4000"`
}

type MessageResponse struct {
	ID         uuid.UUID  `json:"id"`
	LeadID     uuid.UUID  `json:"leadId"`
	AuthorID   *uuid.UUID `json:"authorId,omitempty"`
	AuthorType string     `json:"authorType"`
	Body       string     `json:"body"`
	CreatedAt  time.Time  `json:"createdAt"`
}

type MessageListResponse struct {
	Messages []MessageResponse `json:"messages"`
}

func ToMessageResponse(m repository.Message) MessageResponse {
	return MessageResponse{
		ID:         m.ID,
		LeadID:     m.LeadID,
		AuthorID:   m.AuthorID,
		AuthorType: m.AuthorType,
		Body:       m.Body,
		CreatedAt:  m.CreatedAt,
	}
}

func ToMessageListResponse(messages []repository.Message) MessageListResponse {
	out := MessageListResponse{Messages: make([]MessageResponse, 0, len(messages))}
	for _, m := range messages {
		out.Messages = append(out.Messages, ToMessageResponse(m))
	}
	return out
}
