package repository

const upsertDonorCypher = `
MERGE (d:Donor {id: $donorId})
SET d += $props
`

const setDonorAvailabilityCypher = `
MATCH (d:Donor {id: $donorId})
SET d.availability = $availability, d.updatedAt = $updatedAt
RETURN d.id AS donorId
`

const donorReturnClause = `
RETURN d.id AS donorId,
       d.name AS name,
       d.bloodType AS bloodType,
       d.latitude AS latitude,
       d.longitude AS longitude,
       d.availability AS availability,
       d.lastDonationAt AS lastDonationAt,
       d.nextEligibleAt AS nextEligibleAt,
       d.totalDonations AS totalDonations,
       d.updatedAt AS updatedAt
`

const getDonorCypher = `
MATCH (d:Donor {id: $donorId})
` + donorReturnClause

const fetchDonorsCypher = `
MATCH (d:Donor)
WHERE d.bloodType IN $bloodTypes
  AND (NOT $availableOnly OR d.availability = 'available')
` + donorReturnClause + `
ORDER BY donorId
`

const upsertBloodBankCypher = `
MERGE (b:BloodBank {id: $bankId})
SET b += $props
WITH b
UNWIND $inventory AS line
MERGE (l:InventoryLine {id: line.id})
SET l += line.props
MERGE (b)-[:STOCKS]->(l)
`

const fetchInventoryCypher = `
MATCH (b:BloodBank)-[:STOCKS]->(l:InventoryLine)
WHERE l.bloodType IN $bloodTypes
  AND l.units > 0
RETURN l.id AS lineId,
       b.id AS bankId,
       b.name AS bankName,
       b.latitude AS latitude,
       b.longitude AS longitude,
       l.bloodType AS bloodType,
       l.units AS units,
       l.expiresAt AS expiresAt,
       l.updatedAt AS updatedAt
ORDER BY bankId, lineId
`

// Returns no row when the id is taken.
const createRequestCypher = `
OPTIONAL MATCH (existing:BloodRequest {id: $requestId})
WITH existing
WHERE existing IS NULL
CREATE (r:BloodRequest {id: $requestId})
SET r += $props
RETURN r.id AS requestId
`

const requestReturnClause = `
RETURN r.id AS requestId,
       r.requesterId AS requesterId,
       r.bloodType AS bloodType,
       r.units AS units,
       r.urgency AS urgency,
       r.latitude AS latitude,
       r.longitude AS longitude,
       r.hospitalName AS hospitalName,
       r.status AS status,
       r.createdAt AS createdAt,
       r.updatedAt AS updatedAt,
       r.expiresAt AS expiresAt
`

const getRequestCypher = `
MATCH (r:BloodRequest {id: $requestId})
` + requestReturnClause

const listRequestsCypher = `
MATCH (r:BloodRequest)
WHERE r.status IN $statuses
` + requestReturnClause + `
ORDER BY createdAt, requestId
`

// Compare-and-set on the current status so two writers cannot both move the
// request out of the same state.
const updateRequestStatusCypher = `
MATCH (r:BloodRequest {id: $requestId})
WITH r, r.status = $expected AS applicable
FOREACH (_ IN CASE WHEN applicable THEN [1] ELSE [] END |
  SET r.status = $status, r.updatedAt = $updatedAt
)
RETURN r.id AS requestId, applicable
`

// Clears the previous matches and writes the new set in one statement so a
// failed write leaves the old set in place.
const recordMatchesCypher = `
MATCH (r:BloodRequest {id: $requestId})
OPTIONAL MATCH (r)-[old:MATCHED|ALLOCATED_FROM]->()
DELETE old
WITH DISTINCT r
UNWIND $matches AS m
OPTIONAL MATCH (d:Donor {id: m.candidateId}) WHERE m.kind = 'donor'
OPTIONAL MATCH (l:InventoryLine {id: m.candidateId}) WHERE m.kind = 'inventory'
FOREACH (_ IN CASE WHEN d IS NULL THEN [] ELSE [1] END |
  MERGE (r)-[rel:MATCHED]->(d)
  SET rel.rank = m.rank, rel.distanceKm = m.distanceKm, rel.units = m.units, rel.matchedAt = $matchedAt,
      rel.response = m.response, rel.respondedAt = m.respondedAt
)
FOREACH (_ IN CASE WHEN l IS NULL THEN [] ELSE [1] END |
  MERGE (r)-[rel:ALLOCATED_FROM]->(l)
  SET rel.rank = m.rank, rel.distanceKm = m.distanceKm, rel.units = m.units, rel.matchedAt = $matchedAt
)
`

const listMatchesCypher = `
MATCH (r:BloodRequest {id: $requestId})-[rel:MATCHED|ALLOCATED_FROM]->(c)
RETURN c.id AS candidateId,
       type(rel) AS relType,
       rel.rank AS rank,
       rel.distanceKm AS distanceKm,
       rel.units AS units,
       rel.matchedAt AS matchedAt,
       rel.response AS response,
       rel.respondedAt AS respondedAt
ORDER BY rank
`

const acceptMatchCypher = `
MATCH (r:BloodRequest {id: $requestId})-[rel:MATCHED]->(d:Donor {id: $donorId})
SET rel.response = $response, rel.respondedAt = $respondedAt
RETURN d.id AS donorId
`

const declineMatchCypher = `
MATCH (r:BloodRequest {id: $requestId})-[rel:MATCHED]->(d:Donor {id: $donorId})
DELETE rel
RETURN d.id AS donorId
`

// schemaStatements are idempotent and run once at startup.
var schemaStatements = []string{
	`CREATE CONSTRAINT donor_id IF NOT EXISTS FOR (d:Donor) REQUIRE d.id IS UNIQUE`,
	`CREATE CONSTRAINT blood_bank_id IF NOT EXISTS FOR (b:BloodBank) REQUIRE b.id IS UNIQUE`,
	`CREATE CONSTRAINT inventory_line_id IF NOT EXISTS FOR (l:InventoryLine) REQUIRE l.id IS UNIQUE`,
	`CREATE CONSTRAINT blood_request_id IF NOT EXISTS FOR (r:BloodRequest) REQUIRE r.id IS UNIQUE`,
	`CREATE INDEX donor_blood_type IF NOT EXISTS FOR (d:Donor) ON (d.bloodType)`,
	`CREATE INDEX inventory_blood_type IF NOT EXISTS FOR (l:InventoryLine) ON (l.bloodType)`,
	`CREATE INDEX blood_request_status IF NOT EXISTS FOR (r:BloodRequest) ON (r.status)`,
}
