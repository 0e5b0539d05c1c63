package protocol

import (
	"time"
)

// MessageType is the protocol-level content type tag.
type MessageType string

const (
	MsgText         MessageType = "text"
	MsgExtendedText MessageType = "extended_text"
	MsgImage        MessageType = "image"
	MsgVideo        MessageType = "video"
	MsgAudio        MessageType = "audio"
	MsgDocument     MessageType = "document"
	MsgSticker      MessageType = "sticker"
	MsgLocation     MessageType = "location"
	MsgContactCard  MessageType = "contact_card"
	MsgReaction     MessageType = "reaction"
	MsgButtonReply  MessageType = "button_reply"
	MsgListReply    MessageType = "list_reply"
	MsgTemplate     MessageType = "template"
	MsgProduct      MessageType = "product"
	MsgGroupNotice  MessageType = "group_notice" // roster/subject changes
)

// MediaRef points at downloadable media on the network. The URL and keys are
// opaque to everything except Conn.DownloadMedia.
type MediaRef struct {
	Kind     MessageType
	URL      string
	MediaKey []byte
	MimeType string
	Caption  string
	FileName string
	FileSize int64
}

// Location is a shared geographic point.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// ContactCard is a shared vCard.
type ContactCard struct {
	DisplayName string `json:"display_name"`
	Phone       string `json:"phone"`
	VCard       string `json:"vcard,omitempty"`
}

// Reaction references the reacted-to message.
type Reaction struct {
	TargetID string `json:"target_id"`
	Emoji    string `json:"emoji"`
}

// InteractiveReply is a button or list selection made by the remote side.
type InteractiveReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ProductInfo describes a catalog product attached to a message.
type ProductInfo struct {
	CatalogID string `json:"catalog_id"`
	ProductID string `json:"product_id"`
	Title     string `json:"title,omitempty"`
	Body      string `json:"body,omitempty"`
}

// IncomingMessage is one decrypted inbound (or echoed outbound) message event.
type IncomingMessage struct {
	ID     string
	Chat   JID
	Sender JID
	// SenderPhone is a phone-number hint for linked-identity senders, present
	// on inbound events only.
	SenderPhone string
	FromMe      bool
	PushName    string
	Timestamp   time.Time

	Type     MessageType
	Text     string
	Media    *MediaRef
	Location *Location
	Contact  *ContactCard
	Reaction *Reaction
	Reply    *InteractiveReply
	Product  *ProductInfo
	QuotedID string
}

// --- Outgoing payloads ---

type OutgoingMedia struct {
	Kind     MessageType
	Data     []byte
	MimeType string
	Caption  string
	FileName string
}

type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type ButtonsPayload struct {
	Body    string   `json:"body"`
	Footer  string   `json:"footer,omitempty"`
	Buttons []Button `json:"buttons"`
}

type Row struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type Section struct {
	Title string `json:"title,omitempty"`
	Rows  []Row  `json:"rows"`
}

type ListPayload struct {
	Title      string    `json:"title,omitempty"`
	Body       string    `json:"body"`
	ButtonText string    `json:"button_text"`
	Footer     string    `json:"footer,omitempty"`
	Sections   []Section `json:"sections"`
}

type ProductPayload struct {
	CatalogID string `json:"catalog_id"`
	ProductID string `json:"product_id"`
	Body      string `json:"body,omitempty"`
}

// OutgoingMessage is the uniform send payload. Exactly one content field is
// set, matching Type.
type OutgoingMessage struct {
	Type     MessageType
	Text     string
	Media    *OutgoingMedia
	Location *Location
	Contact  *ContactCard
	Reaction *Reaction
	Buttons  *ButtonsPayload
	List     *ListPayload
	Product  *ProductPayload
	QuotedID string
}

// SendReceipt is returned by Conn.SendMessage on success.
type SendReceipt struct {
	ID        string
	Timestamp time.Time
}
