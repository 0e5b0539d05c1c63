package ingest

import (
	"context"
	"fmt"

	"whatsapp-bridge/internal/models"
	"whatsapp-bridge/internal/protocol"
)

// extracted is the canonical content shape produced from one protocol message.
type extracted struct {
	Type     string
	Content  string
	MediaURL string
	QuotedID string

	// groupNotice marks roster/subject changes, which never bump unread.
	groupNotice bool
}

// extract maps a protocol message onto the stored shape. Media is downloaded
// through the connection and written to durable storage; a download failure
// keeps the message but leaves MediaURL empty. Unrecognized types return nil
// and the event is skipped.
func (p *Pipeline) extract(ctx context.Context, conn protocol.Conn, sessionID string, m *protocol.IncomingMessage) *extracted {
	switch m.Type {
	case protocol.MsgText, protocol.MsgExtendedText:
		return &extracted{Type: models.TypeText, Content: m.Text, QuotedID: m.QuotedID}

	case protocol.MsgImage:
		return p.extractMedia(ctx, conn, sessionID, m, models.TypeImage)
	case protocol.MsgVideo:
		return p.extractMedia(ctx, conn, sessionID, m, models.TypeVideo)
	case protocol.MsgAudio:
		return p.extractMedia(ctx, conn, sessionID, m, models.TypeAudio)
	case protocol.MsgDocument:
		return p.extractMedia(ctx, conn, sessionID, m, models.TypeDocument)
	case protocol.MsgSticker:
		return p.extractMedia(ctx, conn, sessionID, m, models.TypeSticker)

	case protocol.MsgLocation:
		if m.Location == nil {
			return nil
		}
		content := fmt.Sprintf("%f,%f", m.Location.Latitude, m.Location.Longitude)
		if m.Location.Name != "" {
			content += " " + m.Location.Name
		}
		if m.Location.Address != "" {
			content += " " + m.Location.Address
		}
		return &extracted{Type: models.TypeLocation, Content: content}

	case protocol.MsgContactCard:
		if m.Contact == nil {
			return nil
		}
		content := m.Contact.DisplayName
		if m.Contact.Phone != "" {
			content += " " + m.Contact.Phone
		}
		return &extracted{Type: models.TypeContact, Content: content}

	case protocol.MsgReaction:
		if m.Reaction == nil {
			return nil
		}
		return &extracted{
			Type:     models.TypeReaction,
			Content:  m.Reaction.Emoji,
			QuotedID: m.Reaction.TargetID,
		}

	case protocol.MsgButtonReply, protocol.MsgListReply:
		if m.Reply == nil {
			return nil
		}
		return &extracted{Type: models.TypeInteractive, Content: m.Reply.Title, QuotedID: m.QuotedID}

	case protocol.MsgTemplate:
		return &extracted{Type: models.TypeInteractive, Content: m.Text}

	case protocol.MsgProduct:
		if m.Product == nil {
			return nil
		}
		content := m.Product.Title
		if content == "" {
			content = m.Product.Body
		}
		return &extracted{Type: models.TypeProduct, Content: content}

	case protocol.MsgGroupNotice:
		return &extracted{Type: models.TypeText, Content: m.Text, groupNotice: true}
	}

	return nil
}

func (p *Pipeline) extractMedia(ctx context.Context, conn protocol.Conn, sessionID string, m *protocol.IncomingMessage, modelType string) *extracted {
	out := &extracted{Type: modelType, QuotedID: m.QuotedID}
	if m.Media == nil {
		return out
	}
	out.Content = m.Media.Caption
	if out.Content == "" {
		out.Content = m.Media.FileName
	}

	data, err := conn.DownloadMedia(ctx, m.Media)
	if err != nil {
		p.log.Warn().Err(err).
			Str("session", sessionID).
			Str("message", m.ID).
			Str("type", modelType).
			Msg("media download failed")
		return out
	}
	url, err := p.media.Save(sessionID, m.ID, m.Media.MimeType, data)
	if err != nil {
		p.log.Warn().Err(err).
			Str("session", sessionID).
			Str("message", m.ID).
			Msg("media store failed")
		return out
	}
	out.MediaURL = url
	return out
}
