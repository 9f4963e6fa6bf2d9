// Package models defines the JSON payloads carried on the three queues.
package models

// Queue names, used as constants wherever a queue is opened.
const (
	QueueInput  = "asr_input"
	QueueResult = "asr_result"
	QueueClean  = "asr_clean"
)

// ASRMessage is the input-queue payload: a job handed off for upload and
// transcription.
type ASRMessage struct {
	ID      string `json:"id"`
	File    string `json:"file"`
	BaseDir string `json:"base_dir"`
}

// ResultMessage is the result-queue payload, emitted by the ASR worker once
// polling reaches a terminal state (or the input message's retry ceiling is
// hit).
type ResultMessage struct {
	ID         string  `json:"id"`
	File       string  `json:"file"`
	BaseDir    string  `json:"base_dir"`
	ExternalID string  `json:"external_id"`
	Finished   bool    `json:"finished"`
	Error      *string `json:"error,omitempty"`
}

// CleanMessage is the clean-queue payload: a request to purge a job on the
// remote ASR service.
type CleanMessage struct {
	ExternalID string `json:"external_id"`
}
