// Copyright (c) 2014 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

package common

import "fmt"

type PartitionKey []byte
type PartitionId int

func (p PartitionId) String() string {
	return fmt.Sprintf("partn-%d", int(p))
}

//PartitionContainer holds the partitions a table is split into and maps
//an encoded primary key to the partition that stores it.
type PartitionContainer interface {
	GetPartitionIdByPartitionKey(PartitionKey) PartitionId
	GetAllPartitionIds() []PartitionId
	GetNumPartitions() int
}

// HashPartitionContainer assigns keys to a fixed number of partitions
// using a caller supplied hash.
type HashPartitionContainer struct {
	numPartitions int
	hash          func([]byte) uint64
}

func NewHashPartitionContainer(numPartitions int, hash func([]byte) uint64) *HashPartitionContainer {
	if numPartitions <= 0 {
		numPartitions = 1
	}
	return &HashPartitionContainer{numPartitions: numPartitions, hash: hash}
}

func (c *HashPartitionContainer) GetPartitionIdByPartitionKey(key PartitionKey) PartitionId {
	return PartitionId(c.hash(key) % uint64(c.numPartitions))
}

func (c *HashPartitionContainer) GetAllPartitionIds() []PartitionId {
	ids := make([]PartitionId, c.numPartitions)
	for i := range ids {
		ids[i] = PartitionId(i)
	}
	return ids
}

func (c *HashPartitionContainer) GetNumPartitions() int {
	return c.numPartitions
}
