// internal/workers/claims/process-claim/models.go
package processclaim

import "crop-claims/internal/models"

type Input = models.ClaimRequest

type Output = models.ClaimResponse
