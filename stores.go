package main

import (
	"context"
	"time"

	"github.com/joeyave/bookclub/config"
	"github.com/joeyave/bookclub/controller"
	"github.com/joeyave/bookclub/migrations"
	"github.com/joeyave/bookclub/repository"
	"github.com/joeyave/bookclub/repository/memory"
	"github.com/joeyave/bookclub/service"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

type stores struct {
	transactor service.Transactor
	users      service.UserRepository
	books      service.BookRepository
	clubs      service.ClubRepository
	meets      service.MeetRepository
	tokens     service.RevocationStore
	pinger     controller.Pinger

	closers []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	st := &stores{}

	var mongoClient *mongo.Client
	var memStore *memory.Store

	switch cfg.StoreDriver {
	case config.StoreMongo:
		client, err := repository.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		mongoClient = client
		st.closers = append(st.closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = client.Disconnect(ctx)
		})

		if err := migrations.EnsureIndexes(ctx, client, cfg.MongoDatabase); err != nil {
			st.close()
			return nil, err
		}

		transactor := repository.NewTransactor(client)
		st.transactor = transactor
		st.pinger = transactor
		st.users = repository.NewUserRepository(client, cfg.MongoDatabase)
		st.books = repository.NewBookRepository(client, cfg.MongoDatabase)
		st.clubs = repository.NewClubRepository(client, cfg.MongoDatabase)
		st.meets = repository.NewMeetRepository(client, cfg.MongoDatabase)

	case config.StoreMemory:
		log.Warn().Msg("Using the in-memory store, data is lost on restart")
		memStore = memory.NewStore()
		st.transactor = memStore
		st.pinger = memStore
		st.users = memStore.Users()
		st.books = memStore.Books()
		st.clubs = memStore.Clubs()
		st.meets = memStore.Meets()
	}

	switch {
	case cfg.RevocationStore == config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			st.close()
			return nil, err
		}
		st.closers = append(st.closers, func() { _ = client.Close() })
		st.tokens = repository.NewRedisTokenRepository(client)

	case cfg.RevocationStore == config.StoreMongo && mongoClient != nil:
		st.tokens = repository.NewTokenRepository(mongoClient, cfg.MongoDatabase)

	default:
		if memStore == nil {
			memStore = memory.NewStore()
		}
		st.tokens = memStore.Tokens()
	}

	return st, nil
}
