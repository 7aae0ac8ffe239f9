package mq

import "errors"

var (
	// ErrNoChannel — соединение не установлено или переподключается.
	ErrNoChannel = errors.New("no amqp channel available")

	// ErrConnectionClosed — соединение закрыто через Close.
	ErrConnectionClosed = errors.New("amqp connection closed")

	// ErrUnexpectedMessage — сообщение не того типа для очереди.
	ErrUnexpectedMessage = errors.New("unexpected message type")
)
