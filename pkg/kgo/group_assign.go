package kgo

import "sort"

// assignRoundRobin computes a deterministic partition assignment for a
// generation: every subscribed (topic, partition) pair, in canonical order,
// is handed out round-robin to members sorted by member_id (§4.6 step 4,
// §9 Open Question resolution). It claims no bit-compatibility with any
// other consumer group implementation sharing the same group_id.
//
// partitionsByTopic must already reflect each topic's current partition
// list as known by the Cluster.
func assignRoundRobin(memberIDs []string, partitionsByTopic map[string][]int32) map[string]map[string][]int32 {
	members := append([]string(nil), memberIDs...)
	sort.Strings(members)

	assignment := make(map[string]map[string][]int32, len(members))
	for _, m := range members {
		assignment[m] = make(map[string][]int32)
	}
	if len(members) == 0 {
		return assignment
	}

	topics := make([]string, 0, len(partitionsByTopic))
	for t := range partitionsByTopic {
		topics = append(topics, t)
	}
	sort.Strings(topics)

	i := 0
	for _, topic := range topics {
		parts := append([]int32(nil), partitionsByTopic[topic]...)
		sort.Slice(parts, func(a, b int) bool { return parts[a] < parts[b] })
		for _, p := range parts {
			member := members[i%len(members)]
			assignment[member][topic] = append(assignment[member][topic], p)
			i++
		}
	}
	return assignment
}
