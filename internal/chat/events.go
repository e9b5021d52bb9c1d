package chat

import "github.com/matheus3301/gymchat/internal/model"

// Replaced is the payload of message.replaced: a placeholder reconciled with
// its server copy.
type Replaced struct {
	LocalID string
	Message model.Message
}

// SendFailed is the payload of message.send_failed.
type SendFailed struct {
	LocalID string
	Error   string
}

// ReceiptAdded is the payload of receipt.added.
type ReceiptAdded struct {
	Receipt model.ReadReceipt
	Status  model.Status
}
