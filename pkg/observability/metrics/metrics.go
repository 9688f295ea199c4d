package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
)

var (
    once sync.Once

    CurrentTerm = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "graphraft",
        Name:      "current_term",
        Help:      "Current Raft term observed by this server",
    })

    CommitIndex = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "graphraft",
        Name:      "commit_index",
        Help:      "Highest log index known to be committed",
    })

    LastApplied = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "graphraft",
        Name:      "last_applied",
        Help:      "Highest log index applied to the state machine",
    })

    IsLeader = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "graphraft",
        Name:      "is_leader",
        Help:      "1 if this node currently believes it is the leader, else 0",
    })

    LeaderChanges = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "graphraft",
        Name:      "leader_changes_total",
        Help:      "Total number of observed leader change events",
    })

    ElectionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "graphraft",
        Name:      "elections_started_total",
        Help:      "Total number of elections this server has started as a candidate",
    })

    VotesGranted = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "graphraft",
        Name:      "votes_granted_total",
        Help:      "Total number of RequestVote RPCs this server has granted",
    })

    RPCFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "graphraft",
        Name:      "rpc_failures_total",
        Help:      "Total number of failed/timed-out outbound coordination RPCs",
    }, []string{"rpc"})

    ReplicationLagPerPeer = prometheus.NewGaugeVec(prometheus.GaugeOpts{
        Namespace: "graphraft",
        Subsystem: "repl",
        Name:      "lag_per_peer",
        Help:      "commit_index - match_index for each peer, leader side only",
    }, []string{"peer"})

    GRPCConnDials = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "graphraft",
        Subsystem: "grpc_conn",
        Name:      "dials_total",
        Help:      "Total number of new gRPC connections dialed",
    })
    GRPCConnReuse = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "graphraft",
        Subsystem: "grpc_conn",
        Name:      "reuse_total",
        Help:      "Total number of gRPC connection reuses from cache",
    })
    GRPCConnEvictions = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "graphraft",
        Subsystem: "grpc_conn",
        Name:      "evictions_total",
        Help:      "Total number of cached gRPC connections evicted",
    })
    GRPCConnActive = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "graphraft",
        Subsystem: "grpc_conn",
        Name:      "active",
        Help:      "Number of active cached gRPC connections",
    })
)

// Register registers metrics into the default Prometheus registry (idempotent).
func Register() {
    once.Do(func() {
        prometheus.MustRegister(CurrentTerm)
        prometheus.MustRegister(CommitIndex)
        prometheus.MustRegister(LastApplied)
        prometheus.MustRegister(IsLeader)
        prometheus.MustRegister(LeaderChanges)
        prometheus.MustRegister(ElectionsStarted)
        prometheus.MustRegister(VotesGranted)
        prometheus.MustRegister(RPCFailures)
        prometheus.MustRegister(ReplicationLagPerPeer)
        prometheus.MustRegister(GRPCConnDials)
        prometheus.MustRegister(GRPCConnReuse)
        prometheus.MustRegister(GRPCConnEvictions)
        prometheus.MustRegister(GRPCConnActive)
    })
}
