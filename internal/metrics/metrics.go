package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesAppended = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "messages_appended_total",
		Help:      "Messages appended to threads, by kind.",
	}, []string{"kind"})

	Deliveries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "message_deliveries_total",
		Help:      "Recipients computed for appended messages.",
	})

	AttachmentsStored = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "attachments_stored_total",
		Help:      "Attachment objects written to storage.",
	})

	AttachmentsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "attachments_rejected_total",
		Help:      "Uploads rejected by validation, by reason.",
	}, []string{"reason"})

	UniqueThreadConflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "unique_thread_conflicts_total",
		Help:      "Concurrent direct/linked thread creations resolved by re-lookup.",
	}, []string{"kind"})

	TypingWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "typing_writes_total",
		Help:      "Typing presence updates, by outcome (stored, cleared, throttled).",
	}, []string{"outcome"})

	OrphanObjectsRemoved = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "orphan_objects_removed_total",
		Help:      "Stored objects removed by attachment reconciliation.",
	})
)

func init() {
	prometheus.MustRegister(
		MessagesAppended,
		Deliveries,
		AttachmentsStored,
		AttachmentsRejected,
		UniqueThreadConflicts,
		TypingWrites,
		OrphanObjectsRemoved,
	)
}
