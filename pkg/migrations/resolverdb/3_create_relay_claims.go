package resolverdb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	mghelper "github.com/swapsage/resolver/pkg/pgutil/migrations"
	"github.com/swapsage/resolver/pkg/swapstore"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating relay_claims table...")
		if err := mghelper.CreateSchema(ctx, db, &swapstore.RelayClaimDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &swapstore.RelayClaimDao{}, "beneficiary", "swap_id")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping relay_claims table...")
		return mghelper.DropTables(ctx, db, &swapstore.RelayClaimDao{})
	})
}
