package monitor

import (
	"context"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v4"
)

type UpdateContext struct {
	context.Context
	upd telebot.Update
	log *logrus.Entry
}

func NewUpdateContext(c context.Context, upd telebot.Update) *UpdateContext {
	uc := &UpdateContext{
		Context: c,
		upd:     upd,
	}

	fields := logrus.Fields{
		"update_id": upd.ID,
	}
	if chat := uc.Chat(); chat != nil {
		fields["chat_id"] = chat.ID
		fields["chat_type"] = chat.Type
	}
	if sender := uc.Sender(); sender != nil {
		fields["sender_id"] = sender.ID
		fields["sender_username"] = sender.Username
		fields["sender_first_name"] = sender.FirstName
	}
	uc.log = logrus.WithFields(fields)

	return uc
}

func (uc *UpdateContext) L() *logrus.Entry {
	return uc.log
}

func (uc *UpdateContext) Update() telebot.Update {
	return uc.upd
}

func (uc *UpdateContext) Message() *telebot.Message {
	return uc.upd.Message
}

func (uc *UpdateContext) ChatMember() *telebot.ChatMemberUpdate {
	return uc.upd.ChatMember
}

func (uc *UpdateContext) Chat() *telebot.Chat {
	switch {
	case uc.upd.Message != nil:
		return uc.upd.Message.Chat
	case uc.upd.ChatMember != nil:
		return uc.upd.ChatMember.Chat
	}
	return nil
}

// Sender is the author of the message or the actor of a member change.
func (uc *UpdateContext) Sender() *telebot.User {
	switch {
	case uc.upd.Message != nil:
		return uc.upd.Message.Sender
	case uc.upd.ChatMember != nil:
		return uc.upd.ChatMember.Sender
	}
	return nil
}
